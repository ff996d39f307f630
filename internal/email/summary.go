package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SkyZonDev/scrappex/internal/models"
)

// Notifier mails a summary of every finished batch to one recipient.
type Notifier struct {
	sender Sender
	to     string
}

func NewNotifier(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

func (n *Notifier) BatchFinished(ctx context.Context, b models.Batch) error {
	subject, body := FormatSummary(b)
	return n.sender.Send(ctx, n.to, subject, body)
}

// FormatSummary renders the subject and plain-text body for a batch.
func FormatSummary(b models.Batch) (string, string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "BatchID: %s\nStatus: %s\n", b.BatchID, b.Status)
	if b.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", b.Error)
	}

	won := 0
	if b.Result != nil {
		won = b.Result.Won()
		sb.WriteString("\n")
		for _, l := range b.Result.Lots {
			fmt.Fprintf(&sb, "Lot %d @ %s: %s (%d attempts, %d ok, %d rejected, %d inconclusive",
				l.LotID, l.TargetAt.UTC().Format(time.RFC3339Nano), l.Outcome,
				l.Attempts, l.Successes, l.Failures, l.Indeterminate)
			if l.Winner != nil {
				fmt.Fprintf(&sb, ", winner #%d in %.1fms", l.Winner.Seq, l.Winner.ElapsedMs())
			}
			sb.WriteString(")\n")
		}
	}

	subject := fmt.Sprintf("[scrappex] batch %s: %d/%d lots won", shortID(b.BatchID), won, len(b.Lots))
	if b.Status == models.StatusError {
		subject = fmt.Sprintf("[scrappex] batch %s failed", shortID(b.BatchID))
	}
	return subject, sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
