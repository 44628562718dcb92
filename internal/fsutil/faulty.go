package fsutil

import "io"

// FaultyFileSystem wraps a FileSystem and injects failures into Create and
// into writes on created files. Used to exercise export error paths.
type FaultyFileSystem struct {
	FileSystem
	CreateErr error
	WriteErr  error
	CloseErr  error
}

// Create fails with CreateErr when set; otherwise the returned writer fails
// with WriteErr and CloseErr when those are set.
func (f *FaultyFileSystem) Create(name string) (io.WriteCloser, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	w, err := f.FileSystem.Create(name)
	if err != nil {
		return nil, err
	}
	return &faultyWriter{w: w, writeErr: f.WriteErr, closeErr: f.CloseErr}, nil
}

type faultyWriter struct {
	w        io.WriteCloser
	writeErr error
	closeErr error
}

func (w *faultyWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.w.Write(p)
}

func (w *faultyWriter) Close() error {
	if err := w.w.Close(); err != nil {
		return err
	}
	return w.closeErr
}
