package task

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"PdfVault/utils"
)

// EmailNotifier mails a summary of every finished run.
type EmailNotifier struct {
	Mail utils.MailConfig
	To   []string
}

// NotifyRun implements Notifier.
func (n EmailNotifier) NotifyRun(_ context.Context, s RunStatus) error {
	subject := fmt.Sprintf("PDF download run %s %s", s.SourceFile, s.Status)
	return utils.SendMail(n.Mail, n.To, subject, SummaryBody(s))
}

// SummaryBody renders the summary mail of a run.
func SummaryBody(s RunStatus) []byte {
	rows := "to end of file"
	if s.RowCount >= 0 {
		rows = strconv.Itoa(s.RowCount)
	}
	return utils.SummaryHTML("Download run "+s.TaskID, []utils.SummaryLine{
		{Label: "File", Value: s.SourceFile},
		{Label: "Status", Value: s.Status},
		{Label: "Start row", Value: strconv.Itoa(s.StartRow)},
		{Label: "Rows requested", Value: rows},
		{Label: "Processed", Value: strconv.Itoa(s.ProcessedRows)},
		{Label: "Downloaded", Value: strconv.Itoa(s.Counters.Successful)},
		{Label: "Already downloaded", Value: strconv.Itoa(s.Counters.AlreadyDownloaded)},
		{Label: "Failed", Value: strconv.Itoa(s.Counters.Failed)},
		{Label: "Elapsed", Value: s.Elapsed.Round(time.Second).String()},
	})
}
