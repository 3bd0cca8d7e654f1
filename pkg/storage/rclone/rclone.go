// Package rclone archives raw payloads on any rclone backend, optionally encrypted.
package rclone

import (
	"context"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
)

// payloadInfo adapts an in-memory payload to the fs.ObjectInfo rclone's Put
// expects. The archive's own Fs stands in as its origin, since a received
// document has no source filesystem.
type payloadInfo struct {
	dst        fs.Info
	remote     string
	receivedAt time.Time
	size       int64
}

var _ fs.ObjectInfo = payloadInfo{}

func newPayloadInfo(dst fs.Info, remote string, receivedAt time.Time, size int64) payloadInfo {
	return payloadInfo{dst: dst, remote: remote, receivedAt: receivedAt, size: size}
}

func (p payloadInfo) String() string {
	return p.remote
}

func (p payloadInfo) Remote() string {
	return p.remote
}

// ModTime stamps the archived object with the document's receipt time.
func (p payloadInfo) ModTime(context.Context) time.Time {
	return p.receivedAt
}

func (p payloadInfo) Size() int64 {
	return p.size
}

func (p payloadInfo) Fs() fs.Info {
	return p.dst
}

func (p payloadInfo) Hash(context.Context, hash.Type) (string, error) {
	return "", nil
}

func (p payloadInfo) Storable() bool {
	return true
}
