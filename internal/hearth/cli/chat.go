package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/hearth/common/trace"
	"github.com/bdobrica/hearth/internal/hearth/app"
	"github.com/bdobrica/hearth/internal/hearth/executor"
	"github.com/bdobrica/hearth/internal/hearth/intent"
	"github.com/bdobrica/hearth/internal/hearth/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Long: `Reads one message per line from stdin and prints the assistant's reply.

When a reply asks for confirmation, answer "yes" to run the parked action or
"no" to drop it.  "quit" or end of input exits.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	addIdentityFlags(chatCmd)
}

func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().String("user", "local", "User ID the messages are sent as")
	cmd.Flags().String("family", "family", "Family whose calendar is used")
	cmd.Flags().String("member", "", "Family member ID recorded as the event creator")
	cmd.Flags().String("tz", "", "IANA timezone (defaults to the configured timezone)")
}

func identityFromFlags(cmd *cobra.Command, defaultTZ string) intent.RunContext {
	user, _ := cmd.Flags().GetString("user")
	family, _ := cmd.Flags().GetString("family")
	member, _ := cmd.Flags().GetString("member")
	tz, _ := cmd.Flags().GetString("tz")
	if tz == "" {
		tz = defaultTZ
	}
	return intent.RunContext{
		UserID:         user,
		FamilyID:       family,
		FamilyMemberID: member,
		ConversationID: trace.NewConversationID(),
		Timezone:       tz,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	s := &Session{
		Executor: a.Executor,
		Tools:    a.Tools,
		Base:     identityFromFlags(cmd, a.Config().Timezone),
	}
	return s.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// Session is one terminal conversation.  It carries the clarification
// context and the outstanding confirmation token between lines, which is
// the state a chat client would otherwise hold.
type Session struct {
	Executor *executor.Executor
	Tools    tools.Executor
	Base     intent.RunContext

	previous *intent.PreviousContext
	pending  string
}

// Run reads messages from in until EOF, "quit" or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return nil
		}
		res := s.Turn(ctx, line)
		fmt.Fprintf(out, "%s\n> ", res.Text)
	}
	fmt.Fprintln(out)
	return sc.Err()
}

// Turn handles one line and updates the carried state from the reply.
func (s *Session) Turn(ctx context.Context, line string) executor.Result {
	rc := s.Base
	rc.RequestID = trace.NewRequestID()
	ctx = trace.WithRequestID(ctx, rc.RequestID)
	rc.Logger = app.WithTrace(ctx)

	if s.pending != "" {
		token := s.pending
		switch strings.ToLower(line) {
		case "yes", "y", "confirm", "ok":
			s.pending = ""
			return s.after(s.Executor.ConfirmPendingAction(ctx, token, rc, s.Tools))
		case "no", "n", "cancel":
			s.pending = ""
			return s.after(s.Executor.CancelPendingAction(ctx, token, rc))
		}
		// Anything else abandons the parked action; it expires on its own.
		s.pending = ""
	}

	rc.Previous = s.previous
	return s.after(s.Executor.HandleMessage(ctx, line, rc, s.Tools))
}

func (s *Session) after(res executor.Result) executor.Result {
	s.previous = executor.PreviousFromPayload(res.Payload)
	if res.RequiresConfirmation && res.PendingAction != nil {
		s.pending = res.PendingAction.Token
	}
	return res
}
