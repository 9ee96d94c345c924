package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

var errNoSettings = errors.New("settings service not configured")

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change configuration",
	Long: `Without a subcommand, prints the effective configuration: providers,
chunking, retrieval, answer limits, index backend and server options.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Choose the embedding and LLM providers interactively",
	Args:  cobra.NoArgs,
	RunE:  runSettingsWizard,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting by its dotted key, for example:

  finrag settings set retrieval.top_k 8
  finrag settings set answer.call_timeout 45s
  finrag settings set index.backend chromem

'finrag settings keys' lists every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys accepted by 'settings set'",
	Args:  cobra.NoArgs,
	RunE:  runSettingsKeys,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Choose the embedding provider",
	Long:  `Choose the provider that embeds report chunks and questions. Switching it requires re-indexing.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if settingsService == nil {
			return errNoSettings
		}
		return newPrompter(cmd).configure(embeddingStep())
	},
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Choose the answer-writing LLM provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if settingsService == nil {
			return errNoSettings
		}
		return newPrompter(cmd).configure(llmStep())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsWizardCmd, settingsSetCmd,
		settingsKeysCmd, settingsEmbeddingCmd, settingsLLMCmd)
	rootCmd.AddCommand(settingsCmd)
}

type settingRow struct{ label, value string }

type settingsSection struct {
	title string
	rows  []settingRow
}

func providerRows(p domain.AIProvider, model, baseURL, apiKey string, configured bool) []settingRow {
	rows := []settingRow{{"Provider", p.Description()}, {"Model", model}}
	if baseURL != "" {
		rows = append(rows, settingRow{"Base URL", baseURL})
	}
	if p.RequiresAPIKey() {
		key := "(not set)"
		if apiKey != "" {
			key = maskAPIKey(apiKey)
		}
		rows = append(rows, settingRow{"API Key", key})
	}
	status := "configured"
	if !configured {
		status = "not configured"
	}
	return append(rows, settingRow{"Status", status})
}

func describeSettings(s *domain.AppSettings) []settingsSection {
	emb := append(providerRows(s.Embedding.Provider, s.Embedding.Model, s.Embedding.BaseURL,
		s.Embedding.APIKey, s.Embedding.IsConfigured()),
		settingRow{"Dimensions", strconv.Itoa(s.Embedding.Dimensions)},
		settingRow{"Batch", fmt.Sprintf("%d x %d concurrent", s.Embedding.BatchSize, s.Embedding.Concurrency)},
	)
	llm := append(providerRows(s.LLM.Provider, s.LLM.Model, s.LLM.BaseURL,
		s.LLM.APIKey, s.LLM.IsConfigured()),
		settingRow{"Max tokens", strconv.Itoa(s.LLM.MaxTokens)},
		settingRow{"Temperature", fmt.Sprintf("%.2f", s.LLM.Temperature)},
	)
	index := []settingRow{{"Backend", string(s.Index.Backend)}}
	if s.Index.Path != "" {
		index = append(index, settingRow{"Path", s.Index.Path})
	}
	server := []settingRow{{"Address", s.Server.Addr}}
	if s.Server.WatchDir != "" {
		server = append(server, settingRow{"Watch", s.Server.WatchDir})
	}

	return []settingsSection{
		{"Embedding", emb},
		{"LLM", llm},
		{"Chunking", []settingRow{
			{"Size", fmt.Sprintf("%d characters", s.Chunker.Size)},
			{"Overlap", fmt.Sprintf("%d characters", s.Chunker.Overlap)},
		}},
		{"Retrieval", []settingRow{
			{"Top K", strconv.Itoa(s.Retrieval.TopK)},
			{"Min similarity", fmt.Sprintf("%.2f", s.Retrieval.MinSimilarity)},
		}},
		{"Answer", []settingRow{
			{"Language", s.Answer.Language},
			{"Fallback confidence", fmt.Sprintf("%.2f", s.Answer.FallbackConfidence)},
			{"Timeout", fmt.Sprintf("%s (per call %s)", s.Answer.Timeout, s.Answer.CallTimeout)},
			{"Retries", fmt.Sprintf("%d attempts", s.Retry.MaxAttempts)},
		}},
		{"Index", index},
		{"Server", server},
	}
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNoSettings
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	for _, sec := range describeSettings(settings) {
		cmd.Printf("[%s]\n", sec.title)
		for _, r := range sec.rows {
			cmd.Printf("  %s: %s\n", r.label, r.value)
		}
		cmd.Println()
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'finrag settings wizard' to fix it.")
		return nil
	}
	cmd.Println("Configuration is valid.")
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errNoSettings
	}
	key, value := args[0], args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if strings.HasSuffix(key, "api_key") {
		value = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNoSettings
	}
	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errNoSettings
	}

	p := newPrompter(cmd)
	for i, step := range []providerStep{embeddingStep(), llmStep()} {
		cmd.Printf("Step %d/2: %s provider\n", i+1, step.kind)
		cmd.Println(step.intro)
		cmd.Println()
		if err := p.configure(step); err != nil {
			return err
		}
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Saved with a warning: %v\n", err)
		return nil
	}
	cmd.Println("Settings saved.")
	return nil
}

// providerStep is one provider choice in the wizard.
type providerStep struct {
	kind      string
	intro     string
	providers []domain.AIProvider
	models    map[domain.AIProvider]string
	set       func(domain.AIProvider, string, string) error
	validate  func() error
}

func embeddingStep() providerStep {
	return providerStep{
		kind:      "Embedding",
		intro:     "Report chunks and questions are embedded with it. Changing it later means re-indexing.",
		providers: domain.AllEmbeddingProviders(),
		models:    domain.DefaultEmbeddingModels(),
		set:       settingsService.SetEmbeddingProvider,
		validate:  settingsService.ValidateEmbeddingConfig,
	}
}

func llmStep() providerStep {
	return providerStep{
		kind:      "LLM",
		intro:     "It writes the answer from the retrieved passages.",
		providers: domain.AllLLMProviders(),
		models:    domain.DefaultLLMModels(),
		set:       settingsService.SetLLMProvider,
		validate:  settingsService.ValidateLLMConfig,
	}
}

// prompter reads wizard answers from the command's input.
type prompter struct {
	cmd *cobra.Command
	in  *bufio.Reader
	raw io.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	raw := cmd.InOrStdin()
	return &prompter{cmd: cmd, in: bufio.NewReader(raw), raw: raw}
}

func (p *prompter) line() string {
	s, _ := p.in.ReadString('\n')
	return strings.TrimSpace(s)
}

// secret reads without echo when input is a terminal.
func (p *prompter) secret() string {
	if f, ok := p.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		p.cmd.Println()
		if err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return p.line()
}

func (p *prompter) configure(step providerStep) error {
	for i, prov := range step.providers {
		p.cmd.Printf("  %d. %s\n", i+1, prov.Description())
	}
	p.cmd.Print("Provider [1]: ")
	provider := step.providers[parseChoice(p.line(), len(step.providers), 1)-1]

	model := step.models[provider]
	p.cmd.Printf("Model [%s]: ", model)
	if m := p.line(); m != "" {
		model = m
	}

	var apiKey string
	if provider.RequiresAPIKey() {
		p.cmd.Print("API key (empty uses the environment): ")
		apiKey = p.secret()
	}

	if err := step.set(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to save %s provider: %w", strings.ToLower(step.kind), err)
	}
	p.cmd.Print("Checking provider... ")
	if err := step.validate(); err != nil {
		p.cmd.Printf("failed: %v\n", err)
		return fmt.Errorf("%s provider check failed: %w", strings.ToLower(step.kind), err)
	}
	p.cmd.Printf("ok\n%s: %s (%s)\n\n", step.kind, provider.Description(), model)
	return nil
}

// parseChoice returns the 1-based menu choice in input, or def when input
// is empty or out of range.
func parseChoice(input string, n, def int) int {
	v, err := strconv.Atoi(input)
	if err != nil || v < 1 || v > n {
		return def
	}
	return v
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
