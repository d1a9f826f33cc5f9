package storage

import "context"

// MultiArchiver fans an entry out to several archivers and returns the
// first error after trying all of them.
type MultiArchiver []RecordArchiver

func (m MultiArchiver) Archive(ctx context.Context, e ArchiveEntry) error {
	var first error
	for _, a := range m {
		if err := a.Archive(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiArchiver) Close() error {
	var first error
	for _, a := range m {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
