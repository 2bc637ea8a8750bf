// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/utility/kar"
)

func init() {
	currentUserName = "unknown"
	if u, err := user.Current(); err == nil {
		currentUserName = u.Name
	}
}

var (
	currentUserName string
	author          = flag.String("author", "", "Set the author of the package when compressing, the current user by default")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the given archive into the destination directory")
	compress        = flag.String("c", "", "Compress the given file/folder")
	dst             = flag.String("f", "out.kar", "Destination file when compressing, directory when extracting")
	silent          = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	var err error
	switch {
	case *extract != "" && *compress != "":
		err = errors.New("only one operation at a time")
	case *extract != "":
		err = extractFiles(*extract, *dst)
	case *compress != "":
		err = compressFiles(*compress, *dst)
	default:
		flag.PrintDefaults()
		return
	}
	if err != nil {
		log.WithError(err).Fatal("kar failed")
	}
}

func compressFiles(src, dstFile string) error {
	if _, err := os.Stat(dstFile); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	name := *author
	if name == "" {
		name = currentUserName
	}
	builder := kar.NewBuilder(kar.Header{
		Author:      name,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})

	if err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			rel = filepath.Base(path)
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := builder.Add(filepath.ToSlash(rel), f); err != nil {
			return err
		}
		log.WithField("file", rel).Info("Added")
		return nil
	}); err != nil {
		return err
	}

	out, err := os.Create(dstFile)
	if err != nil {
		return err
	}
	written, err := builder.WriteTo(out)
	if err != nil {
		out.Close()
		return err
	}
	log.WithFields(log.Fields{"files": builder.Len(), "bytes": written}).Info("Archive written")
	return out.Close()
}

func extractFiles(src, dstDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	ar, err := kar.Open(f)
	if err != nil {
		return errors.Wrap(err, src)
	}
	for _, name := range ar.Names() {
		data, err := ar.ReadAll(name)
		if err != nil {
			return err
		}
		path := filepath.Join(dstDir, filepath.FromSlash(name))
		if rel, err := filepath.Rel(dstDir, path); err != nil || strings.HasPrefix(rel, "..") {
			return errors.Errorf("%s points outside of %s", name, dstDir)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		log.WithField("file", path).Info("Extracted")
	}
	return nil
}
