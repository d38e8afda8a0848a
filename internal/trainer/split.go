package trainer

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
)

// DefaultTestSize is the share of messages held out for evaluation.
const DefaultTestSize = 0.2

// Split shuffles d and holds out testSize of it. A zero seed draws one from
// the clock and logs it so the run can be reproduced.
func Split(d *model.Dataset, testSize float64, seed int64) (train, test *model.Dataset, err error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
		common.LogInfo("Using random split seed", common.Fields{"seed": seed})
	}
	train, test, err = d.Split(testSize, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("Split dataset", "train", train.Len(), "test", test.Len(), "seed", seed)
	return train, test, nil
}
