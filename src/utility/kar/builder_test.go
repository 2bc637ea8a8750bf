// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestAddAndWrite(t *testing.T) {
	c := qt.New(t)
	builder := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
		Index:       []IndexEntry{{Name: "stale"}},
	})

	c.Assert(builder.Add("test", strings.NewReader("idunvovkjnreovmegihjbrqlkmfrjnb")), qt.IsNil)
	c.Assert(builder.Add("test2", strings.NewReader("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb")), qt.IsNil)
	c.Assert(builder.Add("test", strings.NewReader("replaced")), qt.IsNil)
	c.Assert(len(builder.files), qt.Equals, 2)

	var buf bytes.Buffer
	_, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)

	data := buf.Bytes()
	c.Assert(data[:MagicLength], qt.DeepEquals, magic[:])
	size, err := binaryToint64(data[MagicLength:])
	c.Assert(err, qt.IsNil)

	var header Header
	start := int64(MagicLength + HeaderSizeNumberLength)
	c.Assert(gobDecode(&header, data[start:start+size]), qt.IsNil)
	c.Assert(len(header.Index), qt.Equals, 2)
	c.Assert(header.Index[0].Name, qt.Equals, "test")
	c.Assert(header.Index[0].Size, qt.Equals, int64(len("replaced")))
	c.Assert(header.Index[1].Offset, qt.Equals, header.Index[0].CompressedSize)

	last := header.Index[1]
	c.Assert(int64(len(data)), qt.Equals, start+size+last.Offset+last.CompressedSize)
}

func TestHeaderSizeRoundTrip(t *testing.T) {
	c := qt.New(t)
	got, err := binaryToint64(int64ToBinary(1 << 40))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(1<<40))

	_, err = binaryToint64([]byte{1, 2})
	c.Assert(err, qt.Equals, ErrFileFormat)
}
