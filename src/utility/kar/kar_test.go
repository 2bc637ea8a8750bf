// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"io/ioutil"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/utility/kar"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func build(c *qt.C) []byte {
	builder := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	c.Assert(builder.Add("test", strings.NewReader(testString1)), qt.IsNil)
	c.Assert(builder.Add("test2", strings.NewReader(testString2)), qt.IsNil)
	c.Assert(builder.Len(), qt.Equals, 2)

	var buf bytes.Buffer
	written, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(written, qt.Equals, int64(buf.Len()))
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	c := qt.New(t)
	ar, err := kar.Open(bytes.NewReader(build(c)))
	c.Assert(err, qt.IsNil)

	f, err := ar.Open("test")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Size(), qt.Equals, int64(len(testString1)))

	result, err := ioutil.ReadAll(f)
	c.Assert(err, qt.IsNil)
	c.Assert(string(result), qt.Equals, testString1)
}

func TestCreateAndReadAll(t *testing.T) {
	c := qt.New(t)
	ar, err := kar.Open(bytes.NewReader(build(c)))
	c.Assert(err, qt.IsNil)
	c.Assert(ar.Names(), qt.DeepEquals, []string{"test", "test2"})
	c.Assert(ar.Header().Author, qt.Equals, "devblok")

	second, err := ar.ReadAll("test2")
	c.Assert(err, qt.IsNil)
	c.Assert(string(second), qt.Equals, testString2)

	first, err := ar.ReadAll("test")
	c.Assert(err, qt.IsNil)
	c.Assert(string(first), qt.Equals, testString1)
}

func TestMissingFile(t *testing.T) {
	c := qt.New(t)
	ar, err := kar.Open(bytes.NewReader(build(c)))
	c.Assert(err, qt.IsNil)

	_, err = ar.ReadAll("nope")
	c.Assert(errors.Is(err, kar.ErrNotFound), qt.Equals, true)
}

func TestNotAnArchive(t *testing.T) {
	c := qt.New(t)
	for _, data := range [][]byte{
		nil,
		[]byte("TAR\x00\x01\x00\x00\x00\x00\x00\x00\x00"),
		[]byte("KAR\x00\xff\x00\x00\x00\x00\x00\x00\x00"),
	} {
		_, err := kar.Open(bytes.NewReader(data))
		c.Assert(err, qt.Equals, kar.ErrFileFormat, qt.Commentf("%q", data))
	}
}
