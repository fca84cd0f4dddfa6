package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harun/nava/pkg/routing"
	"github.com/spf13/cobra"
)

var (
	runNoFallback bool
	runIntent     string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a single prompt through the gateway",
	Long: `Run a single prompt through the intent gateway and print the result.
Questions the agent asks with ask_user are answered on stdin.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runNoFallback, "no-fallback", false, "do not fall back to a direct completion on authentication errors")
	runCmd.Flags().StringVar(&runIntent, "intent", "", "skip classification (image, presentation, website, code, text)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("prompt is required")
	}
	intent, err := parseIntent(runIntent)
	if err != nil {
		return err
	}

	d, cleanup, err := buildDaemon(nil)
	if err != nil {
		return err
	}
	defer cleanup()
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.Handle().Start(ctx)
	if _, err := d.Handle().Wait(ctx); err != nil {
		return err
	}

	resp, err := d.Router().Dispatch(ctx, prompt, routing.DispatchOptions{
		Intent:     intent,
		NoFallback: runNoFallback,
		Input:      stdinInput(cmd.InOrStdin(), cmd.ErrOrStderr()),
		Output:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resp.UsedFallback {
		fmt.Fprintln(cmd.ErrOrStderr(), "(answered by direct completion)")
	}
	fmt.Fprintln(out, resp.Output)
	return nil
}

func parseIntent(s string) (routing.Intent, error) {
	switch routing.Intent(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case routing.IntentImage:
		return routing.IntentImage, nil
	case routing.IntentPresentation:
		return routing.IntentPresentation, nil
	case routing.IntentWebsite:
		return routing.IntentWebsite, nil
	case routing.IntentCode:
		return routing.IntentCode, nil
	case routing.IntentText:
		return routing.IntentText, nil
	default:
		return "", fmt.Errorf("unknown intent %q", s)
	}
}

// stdinInput answers ask_user from in, one line per question.
func stdinInput(in io.Reader, prompt io.Writer) func(ctx context.Context, question string) (string, error) {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, question string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(prompt, "%s\n> ", question)
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
}
