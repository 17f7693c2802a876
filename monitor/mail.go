package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/pulsedesk/errors"
)

// DirSpool is the directory raw mails are written to when they could not
// be processed. Only *.eml files count; a missing directory is empty.
type DirSpool struct {
	Dir string
}

// Count implements MailSpool
func (s DirSpool) Count(ctx context.Context) (int, error) {
	if s.Dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Transient(err, "failed to read mail spool "+s.Dir)
	}

	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			n++
		}
	}
	return n, ctx.Err()
}
