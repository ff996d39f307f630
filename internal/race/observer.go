package race

import "github.com/SkyZonDev/scrappex/internal/models"

// Observer receives race events, typically to export metrics. For a lot,
// WarmupFinished always precedes LotResolved.
type Observer interface {
	// PhaseChanged reports a transition; from equals to when a lot first
	// enters PhasePending.
	PhaseChanged(lotID int64, from, to Phase)
	WarmupFinished(lotID int64, err error)
	AttemptFinished(rec models.AttemptRecord)
	LotResolved(res models.LotResult)
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(int64, Phase, Phase)      {}
func (nopObserver) WarmupFinished(int64, error)           {}
func (nopObserver) AttemptFinished(models.AttemptRecord) {}
func (nopObserver) LotResolved(models.LotResult)         {}
