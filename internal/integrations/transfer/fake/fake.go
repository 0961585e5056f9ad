package fake

import (
	"context"
	"sync"
)

type Upload struct {
	Filename string
	Content  []byte
}

// Uploader: заглушка для локального запуска и тестов: складывает документы в память.
// Ошибку из Err возвращает вместо сохранения.
type Uploader struct {
	mu      sync.Mutex
	Err     error
	uploads []Upload
}

func New() *Uploader { return &Uploader{} }

func (u *Uploader) Upload(ctx context.Context, content []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	u.uploads = append(u.uploads, Upload{Filename: filename, Content: append([]byte(nil), content...)})
	return nil
}

func (u *Uploader) SetErr(err error) {
	u.mu.Lock()
	u.Err = err
	u.mu.Unlock()
}

func (u *Uploader) Uploads() []Upload {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]Upload, len(u.uploads))
	copy(out, u.uploads)
	return out
}
