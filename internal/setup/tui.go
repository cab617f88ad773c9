package setup

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/cexbalance/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes configPath and envPath.
func RunTUI(configPath, envPath string) error {
	answers := Answers{
		Secrets:          make(map[string]string),
		StoreBackend:     "sqlite",
		ScheduleInterval: "1h",
		PriceCacheTTL:    "1m",
		RedisAddr:        "localhost:6379",
	}
	var confirm bool

	// step 1: exchanges
	screen("STEP 1: EXCHANGES")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Pick the accounts to aggregate.\n"))
	options := make([]huh.Option[string], 0, len(config.Exchanges))
	for _, name := range config.Exchanges {
		options = append(options, huh.NewOption(name, name))
	}
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Exchanges").
				Options(options...).
				Value(&answers.Exchanges).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("select at least one exchange")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: credentials, stored in the env file only
	for _, name := range answers.Exchanges {
		screen("STEP 2: CREDENTIALS " + name)
		fields := CredentialFields(name)
		values := make([]string, len(fields))
		inputs := make([]huh.Field, 0, len(fields))
		for i, f := range fields {
			input := huh.NewInput().
				Title(f.Title).
				Description(f.Env).
				Value(&values[i]).
				EchoMode(huh.EchoModePassword)
			if !f.Optional {
				input = input.Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("%s cannot be empty", f.Env)
					}
					return nil
				})
			}
			inputs = append(inputs, input)
		}
		if err := huh.NewForm(huh.NewGroup(inputs...)).Run(); err != nil {
			return err
		}
		for i, f := range fields {
			answers.Secrets[f.Env] = values[i]
		}
	}

	// step 3: storage
	screen("STEP 3: SNAPSHOT STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should daily snapshots go?").
				Options(
					huh.NewOption("SQLite file", "sqlite"),
					huh.NewOption("PostgreSQL", "postgres"),
					huh.NewOption("MySQL", "mysql"),
					huh.NewOption("Write-ahead log directory", "wal"),
					huh.NewOption("Do not persist", "none"),
				).
				Value(&answers.StoreBackend),
		),
	).Run()
	if err != nil {
		return err
	}

	if answers.StoreBackend != "none" {
		title, description := "DSN", "Connection string"
		switch answers.StoreBackend {
		case "sqlite":
			title, description = "Database file", "Empty for ./data/snapshots.db"
		case "wal":
			title, description = "WAL directory", "Empty for ./wal/snapshots"
		}
		backend := answers.StoreBackend
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(title).
					Description(description).
					Value(&answers.StoreTarget).
					Validate(func(s string) error {
						if s == "" && (backend == "mysql" || backend == "postgres") {
							return fmt.Errorf("%s needs a connection string", backend)
						}
						return nil
					}),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// step 4: timing and prices
	screen("STEP 4: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Snapshot interval").
				Description("Duration string (e.g. 30m, 1h, 24h)").
				Value(&answers.ScheduleInterval).
				Validate(validateDuration),
			huh.NewSelect[string]().
				Title("Price cache").
				Options(
					huh.NewOption("None", ""),
					huh.NewOption("In memory", "memory"),
					huh.NewOption("Redis", "redis"),
				).
				Value(&answers.PriceCache),
			huh.NewInput().
				Title("Price cache TTL").
				Value(&answers.PriceCacheTTL).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	if answers.PriceCache == "redis" {
		err = huh.NewForm(huh.NewGroup(huh.NewInput().Title("Redis address").Value(&answers.RedisAddr))).Run()
		if err != nil {
			return err
		}
	}

	tmp, err := BuildConfig(answers)
	if err != nil {
		return err
	}

	// confirmation
	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Exchanges: %v\nStore: %s %s\nInterval: %s\nPrice cache: %s\n",
		answers.Exchanges, answers.StoreBackend, answers.StoreTarget, answers.ScheduleInterval, orNone(answers.PriceCache),
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	if err := WriteFiles(tmp, answers.Secrets, configPath, envPath); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s, credentials to %s", configPath, envPath)))
	return nil
}

func screen(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("CEXBALANCE SETUP"))
	fmt.Println(stepStyle.Render(step))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
