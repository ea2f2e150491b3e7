// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/elemarin/paw/internal/config"
	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/secrets"
	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// initHTTPClient is the HTTP client used for provider key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// serverKeyName is the keyring entry holding the generated HTTP API token.
const serverKeyName = "server-api-key"

type initWizardStep int

const (
	stepProvider    initWizardStep = iota // select provider
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepServerKey                         // protect the API with a token?
	stepDone
	stepError
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider  provider.ProviderName
	APIKey    string
	ServerKey string
}

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var supportedProviders = []provider.ProviderName{
	provider.ProviderAnthropic,
	provider.ProviderOpenAI,
	provider.ProviderGoogle,
}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipValidation bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		m.step = stepServerKey
		return m, nil

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepServerKey:
		return m.handleServerKey(msg)
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	}

	key := strings.TrimSpace(m.apiKeyInput.Value())
	if key == "" {
		m.validationErr = "API key must not be empty"
		return m, nil
	}
	m.result.APIKey = key
	m.validationErr = ""
	if m.skipValidation {
		m.step = stepServerKey
		return m, nil
	}
	m.step = stepValidateKey
	return m, tea.Batch(m.spinner.Tick, validateProviderKeyCmd(m.result.Provider, key))
}

func (m initModel) handleServerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		token, err := generateToken()
		if err != nil {
			return m, func() tea.Msg { return err }
		}
		m.result.ServerKey = token
	case "n":
		m.result.ServerKey = ""
	default:
		return m, nil
	}
	return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Paw Setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/2: Choose your model provider") + "\n\n")
		for i, p := range supportedProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+string(p)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(p)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Provider) + " API key…\n")

	case stepServerKey:
		b.WriteString(promptStyle.Render("Step 2/2: Protect the HTTP API with a generated token?") + "\n\n")
		b.WriteString("The token is stored in the OS keyring and the CLI picks it up automatically.\n")
		b.WriteString("\n" + dimStyle.Render("y (default) / n"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("paw start") + " and " + promptStyle.Render("paw chat") + " to get started.\n")
		b.WriteString("Run " + promptStyle.Render("paw doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func validateProviderKeyCmd(p provider.ProviderName, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, p, key); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretsAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", pawerr.Errorf(pawerr.CodeCLISetupFailure, "generating API token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// defaultModelForProvider returns the default provider/model for p.
func defaultModelForProvider(p provider.ProviderName) string {
	switch p {
	case provider.ProviderAnthropic:
		return "anthropic/claude-sonnet-4-5"
	case provider.ProviderOpenAI:
		return "openai/gpt-4o"
	case provider.ProviderGoogle:
		return "google/gemini-2.0-flash"
	default:
		return string(p) + "/default"
	}
}

// GenerateConfigYAML renders the default config with the wizard's choices
// applied. Secrets appear only as keyring references; the comments of the
// default file are kept.
func GenerateConfigYAML(result initResult) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(config.DefaultConfigYAML, &doc); err != nil {
		return "", pawerr.Errorf(pawerr.CodeCLISetupFailure, "parsing default config: %w", err)
	}
	if len(doc.Content) == 0 {
		return "", pawerr.New(pawerr.CodeCLISetupFailure, "default config is empty")
	}
	root := doc.Content[0]

	providers := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		scalarNode(string(result.Provider)),
		{Kind: yaml.MappingNode, Content: []*yaml.Node{
			scalarNode("api_key"),
			scalarNode(secrets.Ref(server.ProviderKeyName(string(result.Provider)))),
		}},
	}}
	setNode(root, providers, "providers")
	setNode(root, scalarNode(defaultModelForProvider(result.Provider)), "models", "default")
	if result.ServerKey != "" {
		setNode(root, scalarNode(secrets.Ref(serverKeyName)), "server", "api_key")
	}

	var sb strings.Builder
	sb.WriteString("# Generated by paw init.\n")
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", pawerr.Errorf(pawerr.CodeCLISetupFailure, "rendering config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", pawerr.Errorf(pawerr.CodeCLISetupFailure, "rendering config: %w", err)
	}
	return sb.String(), nil
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// setNode replaces the value at path in a mapping node, creating
// intermediate mappings as needed.
func setNode(m *yaml.Node, val *yaml.Node, path ...string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != path[0] {
			continue
		}
		if len(path) == 1 {
			val.LineComment = m.Content[i+1].LineComment
			m.Content[i+1] = val
			return
		}
		setNode(m.Content[i+1], val, path[1:]...)
		return
	}
	if len(path) == 1 {
		m.Content = append(m.Content, scalarNode(path[0]), val)
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, scalarNode(path[0]), child)
	setNode(child, val, path[1:]...)
}

// storeSecretsAndWriteConfig saves secrets to the keyring and writes the
// config to configPathForWrite. An existing file is only replaced when
// forceOverwrite is set.
func storeSecretsAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", pawerr.Errorf(pawerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	providerKey := server.ProviderKeyName(string(result.Provider))
	if err := store.Store(secrets.Service, providerKey, result.APIKey); err != nil {
		return "", pawerr.Errorf(pawerr.CodeSecretStoreFailure, "storing %s API key: %w", result.Provider, err)
	}
	if result.ServerKey != "" {
		if err := store.Store(secrets.Service, serverKeyName, result.ServerKey); err != nil {
			return "", pawerr.Errorf(pawerr.CodeSecretStoreFailure, "storing server API key: %w", err)
		}
	}

	content, err := GenerateConfigYAML(result)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		return "", pawerr.Errorf(pawerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}
	return cfgPath, nil
}

// configPathForWrite returns where init writes the config. Tests override it.
var configPathForWrite = config.DefaultConfigPath

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Run an interactive wizard that picks a model provider, validates its API
key, and optionally generates a token for the HTTP API.

Secrets are stored in the OS keyring and referenced as keyring:// URIs in
the config file. No secret is written in plain text.`,
		RunE: runInit,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	cmd.Flags().Bool("skip-validation", false, "store the API key without checking it against the provider")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"paw init requires an interactive terminal.\n"+
				"To configure paw non-interactively, edit ~/.config/paw/paw.yaml and use `paw secret set`.")
		return pawerr.New(pawerr.CodeCLISetupFailure, "paw init: not an interactive terminal")
	}

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite, _ = cmd.Flags().GetBool("force")
	m.skipValidation, _ = cmd.Flags().GetBool("skip-validation")

	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return pawerr.Errorf(pawerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return pawerr.New(pawerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return pawerr.Errorf(pawerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
