// Package predict runs the fish growth panel: three period lengths in,
// the predicted fourth period out.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
)

const msgInvalidInputs = "请输入三个有效的数字"

var (
	ErrInvalidInputs = errors.New(msgInvalidInputs)
	ErrRejected      = errors.New("prediction rejected")
)

// Predictor asks the upstream model for the next period.
type Predictor interface {
	PredictLength(ctx context.Context, periods [3]float64) (*ocean.Envelope[ocean.Prediction], error)
}

// Inputs are the three period lengths as typed by the user.
type Inputs struct {
	Period1 string `json:"period1"`
	Period2 string `json:"period2"`
	Period3 string `json:"period3"`
}

// Ready reports whether every field has been filled in.
func (in Inputs) Ready() bool {
	return in.Period1 != "" && in.Period2 != "" && in.Period3 != ""
}

// Parse validates the inputs as a unit and returns them in period order.
func (in Inputs) Parse() ([3]float64, error) {
	var periods [3]float64
	for i, raw := range []string{in.Period1, in.Period2, in.Period3} {
		value := strings.TrimSpace(raw)
		if value == "" {
			return periods, ErrInvalidInputs
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return periods, ErrInvalidInputs
		}
		periods[i] = parsed
	}
	return periods, nil
}

// Snapshot is the panel state shown to the user.
type Snapshot struct {
	Result  *ocean.Prediction `json:"result,omitempty"`
	Display string            `json:"display,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Flow holds one page's prediction state.
type Flow struct {
	mu        sync.Mutex
	predictor Predictor
	result    *ocean.Prediction
	errMsg    string
}

// NewFlow creates the panel.
func NewFlow(predictor Predictor) *Flow {
	return &Flow{predictor: predictor}
}

// Predict validates inputs and, only when valid, requests a prediction.
func (f *Flow) Predict(ctx context.Context, inputs Inputs) (*ocean.Prediction, error) {
	f.mu.Lock()
	f.result = nil
	f.errMsg = ""

	periods, err := inputs.Parse()
	if err != nil {
		f.errMsg = msgInvalidInputs
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	resp, err := f.predictor.PredictLength(ctx, periods)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.errMsg = "预测失败: " + failureDetail(err)
		return nil, err
	}
	if !resp.Success {
		f.errMsg = resp.Error
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}

	result := resp.Data
	f.result = &result
	return &result, nil
}

// Snapshot returns the panel state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{Error: f.errMsg}
	if f.result != nil {
		result := *f.result
		snap.Result = &result
		snap.Display = Display(result)
	}
	return snap
}

// Display renders the prediction rounded to two decimals.
func Display(result ocean.Prediction) string {
	return fmt.Sprintf("预测的第四个周期体长为: %.2f cm", result.PredictedLength)
}

func failureDetail(err error) string {
	var clientErr *client.Error
	if errors.As(err, &clientErr) {
		return clientErr.Detail()
	}
	return err.Error()
}
