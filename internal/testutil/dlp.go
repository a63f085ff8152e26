// Package testutil builds daily records, archives and fake collaborators for tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
)

// Labels returns the 48 trailing-edge labels 0:30 .. 24:00.
func Labels() []string {
	labels := make([]string, 0, 48)
	for i := 1; i <= 48; i++ {
		m := i * 30
		labels = append(labels, fmt.Sprintf("%d:%02d", m/60, m%60))
	}
	return labels
}

// Value is the reading Record writes for circuit index c at interval i.
func Value(c, i int) float64 {
	return float64(c*1000+i) / 10
}

// Record renders a well-formed daily record for date with the given circuits.
func Record(date time.Time, circuits ...string) []byte {
	return RecordWithKey(date.Format("20060102"), circuits...)
}

// RecordWithKey renders a record whose identifier cell is key.
func RecordWithKey(key string, circuits ...string) []byte {
	var b strings.Builder
	b.WriteString(key + ",Profile,Method," + strings.Join(Labels(), ",") + "\n")
	for c, name := range circuits {
		fmt.Fprintf(&b, "%d,%s,Dynamic", c+1, name)
		for i := 0; i < 48; i++ {
			fmt.Fprintf(&b, ",%g", Value(c, i))
		}
		b.WriteString("\n")
	}
	// trailing blank line, as the utility's files have
	b.WriteString(",,,\n")
	return []byte(b.String())
}

// Zip builds a zip archive from name -> content.
func Zip(files map[string][]byte) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(data); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// FakeFetcher serves canned bodies by URL and counts calls.
type FakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  map[string]int
}

func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Serve registers a body for url.
func (f *FakeFetcher) Serve(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
	delete(f.errs, url)
}

// Fail makes url return err.
func (f *FakeFetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// Calls returns how many times url was fetched.
func (f *FakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Total returns the number of fetches across all URLs.
func (f *FakeFetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakeFetcher) Fetch(_ context.Context, url string, sink io.Writer) error {
	f.mu.Lock()
	f.calls[url]++
	body, ok := f.bodies[url]
	err := f.errs[url]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no fake body for %s", url)
	}
	_, err = sink.Write(body)
	return err
}
