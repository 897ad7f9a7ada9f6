package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Mirror pushes stored artifacts to object storage in the background. It is
// best effort: a failed mirror upload is logged and never fails the request
// that produced the artifact.
type Mirror struct {
	svc    Service
	opts   UploadOptions
	logger *logrus.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewMirror(svc Service, opts UploadOptions, logger *logrus.Logger) *Mirror {
	if logger == nil {
		logger = logrus.New()
	}
	return &Mirror{
		svc:    svc,
		opts:   opts,
		logger: logger,
		sem:    make(chan struct{}, 2),
	}
}

// Enqueue schedules one artifact for upload. Safe to call with a nil Mirror.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sem <- struct{}{}
		defer func() { <-m.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		location, err := m.svc.UploadFile(ctx, localPath, m.opts)
		if err != nil {
			m.logger.Warnf("mirror %s: %v", localPath, err)
			return
		}
		m.logger.Infof("mirrored %s to %s", localPath, location)
	}()
}

// Shutdown waits for in-flight uploads to finish.
func (m *Mirror) Shutdown() {
	if m == nil {
		return
	}
	m.wg.Wait()
}
