// Package identify runs the marine-life image classification panel:
// file selection with a type allow-list, then a single in-flight upload.
package identify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
)

const (
	msgBadType     = "请选择 JPG 或 PNG 格式的图片"
	msgRejected    = "识别失败"
	msgBusy        = "服务器繁忙，请稍后再试"
	unknownSpecies = "未知物种"
)

var (
	ErrUnsupportedType = errors.New(msgBadType)
	ErrNoFile          = errors.New("no image selected")
	ErrUploadInFlight  = errors.New("an upload is already in progress")
	ErrRateLimited     = errors.New(msgBusy)
	ErrRejected        = errors.New("classification rejected")
)

// allowedTypes lists the image formats the panel accepts.
var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Uploader sends the selected image to the classifier.
type Uploader interface {
	IdentifyMarineLife(ctx context.Context, file client.Upload) (*ocean.Envelope[ocean.Identification], error)
}

// SelectedFile describes the currently selected image, without its bytes.
type SelectedFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// Snapshot is the panel state shown to the user.
type Snapshot struct {
	SelectedFile *SelectedFile         `json:"selectedFile"`
	Uploading    bool                  `json:"uploading"`
	Result       *ocean.Identification `json:"result,omitempty"`
	Display      string                `json:"display,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Flow holds one page's classification state.
type Flow struct {
	mu        sync.Mutex
	uploader  Uploader
	limiter   *rate.Limiter
	selected  *client.Upload
	uploading bool
	result    *ocean.Identification
	errMsg    string
}

// NewFlow creates the panel. limiter may be nil to disable throttling.
func NewFlow(uploader Uploader, limiter *rate.Limiter) *Flow {
	return &Flow{uploader: uploader, limiter: limiter}
}

// NewLimiter allows perMinute uploads per minute with no burst beyond one.
func NewLimiter(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
}

// Select stores file when its declared type is allowed; otherwise it
// clears the selection and records the validation error.
func (f *Flow) Select(file client.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := allowedTypes[file.ContentType]; !ok {
		f.selected = nil
		f.errMsg = msgBadType
		return ErrUnsupportedType
	}

	f.selected = &file
	f.errMsg = ""
	return nil
}

// Upload classifies the selected image.
func (f *Flow) Upload(ctx context.Context) (*ocean.Identification, error) {
	f.mu.Lock()
	if f.selected == nil {
		f.mu.Unlock()
		return nil, ErrNoFile
	}
	if f.uploading {
		f.mu.Unlock()
		return nil, ErrUploadInFlight
	}
	if f.limiter != nil && !f.limiter.Allow() {
		f.errMsg = msgBusy
		f.mu.Unlock()
		return nil, ErrRateLimited
	}
	file := *f.selected
	f.uploading = true
	f.errMsg = ""
	f.mu.Unlock()

	resp, err := f.uploader.IdentifyMarineLife(ctx, file)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploading = false

	if err != nil {
		f.errMsg = "上传失败: " + failureDetail(err)
		return nil, err
	}
	if !resp.Success {
		f.errMsg = resp.Error
		if f.errMsg == "" {
			f.errMsg = msgRejected
		}
		return nil, ErrRejected
	}

	result := resp.Data
	f.result = &result
	return &result, nil
}

// Snapshot returns the panel state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{Uploading: f.uploading, Error: f.errMsg}
	if f.selected != nil {
		snap.SelectedFile = &SelectedFile{
			Name:        f.selected.Name,
			ContentType: f.selected.ContentType,
			Size:        len(f.selected.Data),
		}
	}
	if f.result != nil {
		result := *f.result
		snap.Result = &result
		snap.Display = Display(result)
	}
	return snap
}

// Display renders a classification result line.
func Display(result ocean.Identification) string {
	species := result.Species
	if species == "" {
		species = unknownSpecies
	}
	return "识别结果: " + species
}

func failureDetail(err error) string {
	var clientErr *client.Error
	if errors.As(err, &clientErr) {
		return clientErr.Detail()
	}
	return err.Error()
}
