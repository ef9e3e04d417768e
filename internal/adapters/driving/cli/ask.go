package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

var askCmd = &cobra.Command{
	Use:   "ask <fabric-id> <question...>",
	Short: "Ask a question against a ready fabric",
	Long: `Retrieve the most relevant chunks from the fabric and answer the question
with the fabric's chat model. Sources used for the answer are listed below it.`,
	Example: `  fabric ask 1f0c "how do I reset a VPN token?"`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runAsk,
}

var (
	askTimeout time.Duration
	askJSON    bool
)

func init() {
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 60*time.Second, "maximum time to wait for the answer")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if responder == nil {
		return errors.New("responder not configured")
	}

	question := strings.TrimSpace(strings.Join(args[1:], " "))
	if question == "" {
		return errors.New("question cannot be empty")
	}

	ctx := cmd.Context()
	if askTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, askTimeout)
		defer cancel()
	}

	answer, err := responder.Answer(ctx, args[0], question, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no answer within %s", askTimeout)
		}
		return fmt.Errorf("failed to answer: %w", withHint(err))
	}

	if askJSON {
		return writeJSON(cmd.OutOrStdout(), newAnswerView(answer))
	}

	cmd.Println(answer.Text)
	if len(answer.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, c := range answer.Citations {
			printCitation(cmd, i+1, c)
		}
	}
	return nil
}

func printCitation(cmd *cobra.Command, n int, c domain.SourceCitation) {
	title := c.Title
	if title == "" {
		title = c.ID
	}
	cmd.Printf("  [%d] %s\n", n, title)
	if c.Link != "" {
		cmd.Printf("      %s\n", c.Link)
	}
}

// withHint appends the category hint to errors that carry one.
func withHint(err error) error {
	var hinter domain.Hinter
	if errors.As(err, &hinter) && hinter.Hint() != "" {
		return fmt.Errorf("%w (hint: %s)", err, hinter.Hint())
	}
	if hint := domain.Classify(err).Hint(); hint != "" {
		return fmt.Errorf("%w (hint: %s)", err, hint)
	}
	return err
}

type answerView struct {
	Answer      string         `json:"answer"`
	Model       string         `json:"model"`
	ContextUsed int            `json:"context_used"`
	Citations   []citationView `json:"citations"`
}

type citationView struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Link    string `json:"link,omitempty"`
	Table   string `json:"table,omitempty"`
	SysID   string `json:"sys_id,omitempty"`
}

func newAnswerView(a *domain.Answer) answerView {
	v := answerView{
		Answer:      a.Text,
		Model:       a.Model,
		ContextUsed: a.ContextUsed,
		Citations:   make([]citationView, 0, len(a.Citations)),
	}
	for _, c := range a.Citations {
		v.Citations = append(v.Citations, citationView{
			ID: c.ID, Title: c.Title, Snippet: c.Snippet, Link: c.Link, Table: c.Table, SysID: c.SysID,
		})
	}
	return v
}
