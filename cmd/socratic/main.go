package main

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"socratic-go/internal/app"
	"socratic-go/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "UploadDocument").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// identity returns the caller identity from the --identity flag, falling back
// to the SOCRATIC_IDENTITY environment variable.
func identity(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("identity")
	if id == "" {
		id = os.Getenv("SOCRATIC_IDENTITY")
	}
	if id == "" {
		return "", fmt.Errorf("no identity: pass --identity or set SOCRATIC_IDENTITY")
	}
	return id, nil
}

// readPassphrase prompts for a passphrase without echoing it.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:   "socratic",
	Short: "Token-metered knowledge base",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		treasury, _ := cmd.Flags().GetString("treasury")
		if treasury == "" {
			treasury = "treasury-" + uuid.New().String()
		}

		cfg := config.NewConfig(treasury, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Treasury: %s\n", treasury)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Treasury:  %s\n", cfg.Treasury)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Content:   %s\n", cfg.Content.Type)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("InitializeUser")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.InitUser(caller)
		if err != nil {
			return err
		}

		fmt.Printf("Account ready: %s (balance %d)\n", acct.Owner, acct.TokenBalance)
		return nil
	},
}

// wallet command
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "View token balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("GetWallet")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.GetWallet(caller)
		if err != nil {
			return err
		}

		fmt.Printf("Owner:              %s\n", acct.Owner)
		fmt.Printf("Token balance:      %d\n", acct.TokenBalance)
		fmt.Printf("Documents uploaded: %d\n", acct.DocumentsUploaded)
		fmt.Printf("Queries made:       %d\n", acct.QueriesMade)
		fmt.Printf("Reputation:         %d\n", acct.ReputationScore)
		return nil
	},
}

var walletPurchaseCmd = &cobra.Command{
	Use:   "purchase AMOUNT",
	Short: "Buy tokens with external currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		amount, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || amount == 0 {
			return fmt.Errorf("amount must be a positive integer")
		}

		a, err := newApp("PurchaseTokens")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.Purchase(cmd.Context(), caller, amount)
		if err != nil {
			return err
		}

		fmt.Printf("Purchased. New balance: %d\n", acct.TokenBalance)
		return nil
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docUploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}
		accessLevel, _ := cmd.Flags().GetUint8("access-level")

		a, err := newApp("UploadDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, doc, err := a.UploadDocument(caller, args[0], accessLevel)
		if err != nil {
			return err
		}

		fmt.Printf("Uploaded document #%d (%s)\n", doc.Index, doc.ContentHash[:12])
		fmt.Printf("Cost: %d  Balance: %d\n", doc.TokenCost, acct.TokenBalance)
		return nil
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ListDocuments")
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.ListDocuments(caller)
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}

		for _, d := range docs {
			active := " "
			if !d.IsActive {
				active = "x"
			}
			fmt.Printf("%s #%-4d %s  level:%d  %s\n",
				active,
				d.Index,
				d.ContentHash[:12],
				d.AccessLevel,
				d.UploadTimestamp.Format("2006-01-02 15:04:05"),
			)
		}
		return nil
	},
}

var docGetCmd = &cobra.Command{
	Use:   "get OWNER INDEX DEST",
	Short: "Download and decrypt a document",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document index %q", args[1])
		}

		a, err := newApp("DownloadDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		if err := a.DownloadDocument(args[0], index, passphrase, args[2]); err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", args[2])
		return nil
	},
}

var docShareCmd = &cobra.Command{
	Use:   "share INDEX LEVEL",
	Short: "Change a document's access level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		index, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document index %q", args[0])
		}
		level, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid access level %q", args[1])
		}

		a, err := newApp("ShareDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, doc, err := a.ShareDocument(caller, caller, index, uint8(level))
		if err != nil {
			return err
		}

		fmt.Printf("Document #%d access level: %d  Balance: %d\n", doc.Index, doc.AccessLevel, acct.TokenBalance)
		return nil
	},
}

// chat command
var chatCmd = &cobra.Command{
	Use:   "chat QUERY",
	Short: "Run a metered chat query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ChatQuery")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, q, err := a.Chat(caller, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Query #%d recorded. Cost: %d  Balance: %d\n", q.Index, q.TokensSpent, acct.TokenBalance)
		return nil
	},
}

// quiz command
var quizCmd = &cobra.Command{
	Use:   "quiz DOCUMENT_HASH",
	Short: "Generate a quiz from a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("GenerateQuiz")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, quiz, err := a.Quiz(caller, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Quiz recorded for %s. Cost: %d  Balance: %d\n", quiz.DocumentHash[:12], quiz.TokensSpent, acct.TokenBalance)
		return nil
	},
}

// stake command
var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Manage staked tokens",
}

var stakeAddCmd = &cobra.Command{
	Use:   "add AMOUNT",
	Short: "Stake tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		amount, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || amount == 0 {
			return fmt.Errorf("amount must be a positive integer")
		}

		a, err := newApp("StakeTokens")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, stake, err := a.StakeAdd(caller, amount)
		if err != nil {
			return err
		}

		fmt.Printf("Staked %d at %d. Balance: %d\n", stake.Amount, stake.StakedAt.Unix(), acct.TokenBalance)
		return nil
	},
}

var stakeRemoveCmd = &cobra.Command{
	Use:   "remove STAKED_AT",
	Short: "Unstake tokens (after the cooldown)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		stakedAt, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid stake timestamp %q", args[0])
		}

		a, err := newApp("UnstakeTokens")
		if err != nil {
			return err
		}
		defer a.Close()

		acct, stake, err := a.StakeRemove(caller, stakedAt)
		if err != nil {
			return err
		}

		fmt.Printf("Unstaked %d. Balance: %d\n", stake.Amount, acct.TokenBalance)
		return nil
	},
}

var stakeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your stakes",
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ListStakes")
		if err != nil {
			return err
		}
		defer a.Close()

		stakes, err := a.ListStakes(caller)
		if err != nil {
			return err
		}

		if len(stakes) == 0 {
			fmt.Println("No stakes.")
			return nil
		}

		for _, s := range stakes {
			status := "active"
			if !s.IsActive {
				status = "spent"
			}
			fmt.Printf("%d  %-8d %s  (%s)\n", s.StakedAt.Unix(), s.Amount, s.StakedAt.Format("2006-01-02 15:04:05"), status)
		}
		return nil
	},
}

// activity command
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "View your activity log",
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := identity(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ListActivity")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListActivity(caller)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No activity recorded.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-18s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				e.Transition,
				e.Detail,
			)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve()
	},
}

func init() {
	rootCmd.PersistentFlags().String("identity", "", "Caller identity (defaults to SOCRATIC_IDENTITY)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configInitCmd.Flags().String("treasury", "", "Treasury identity receiving purchase payments")

	keysCmd.AddCommand(keysInitCmd)
	userCmd.AddCommand(userInitCmd)

	walletCmd.AddCommand(walletPurchaseCmd)

	docCmd.AddCommand(docUploadCmd)
	docCmd.AddCommand(docListCmd)
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docShareCmd)
	docUploadCmd.Flags().Uint8("access-level", 0, "Initial access level (0 = private)")

	stakeCmd.AddCommand(stakeAddCmd)
	stakeCmd.AddCommand(stakeRemoveCmd)
	stakeCmd.AddCommand(stakeListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(stakeCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(serveCmd)
}
