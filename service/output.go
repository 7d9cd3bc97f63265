package service

import (
	"strconv"

	"github.com/joeychilson/pdfworks/cache"
)

// File is one named output of a multi-file result.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Output is the result of an operation. Single-document results fill Body;
// multi-file results fill Files.
type Output struct {
	ContentType string
	Filename    string
	Body        []byte
	Files       []File
	// Meta carries small response values such as the message shown with a
	// multi-file result or the sizes reported by compress.
	Meta map[string]string
	// Cached is set when the output was served from the result cache.
	Cached bool
}

// Message returns Meta["message"].
func (o *Output) Message() string {
	return o.Meta["message"]
}

// MetaInt returns the integer stored under key, or 0.
func (o *Output) MetaInt(key string) int64 {
	n, _ := strconv.ParseInt(o.Meta[key], 10, 64)
	return n
}

// Size returns the number of payload bytes.
func (o *Output) Size() int {
	n := len(o.Body)
	for _, f := range o.Files {
		n += len(f.Data)
	}
	return n
}

// Entry converts the output into a cache entry stored under key.
func (o *Output) Entry(key string) *cache.Entry {
	e := &cache.Entry{
		Key:         key,
		ContentType: o.ContentType,
		Filename:    o.Filename,
		Body:        o.Body,
		Meta:        o.Meta,
	}
	for _, f := range o.Files {
		e.Files = append(e.Files, cache.File{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	return e
}

// FromEntry rebuilds an output from a cache entry.
func FromEntry(e *cache.Entry) *Output {
	o := &Output{
		ContentType: e.ContentType,
		Filename:    e.Filename,
		Body:        e.Body,
		Meta:        e.Meta,
	}
	for _, f := range e.Files {
		o.Files = append(o.Files, File{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	return o
}
