package flags

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Def defines a command-line flag with the configuration key it overrides.
type (
	Type interface {
		string | int | bool | time.Duration
	}

	Def[T Type] struct {
		Name         string
		ViperKey     string
		DefaultValue T
		Description  string
	}
)

// Declare declares flags on cmd and binds each of them to its viper configuration key.
func Declare[T Type](cmd *cobra.Command, defs []Def[T]) error {
	for _, def := range defs {
		if err := declare(cmd, def); err != nil {
			return err
		}
	}
	return nil
}

// MustDeclare is Declare for package init blocks.
func MustDeclare[T Type](cmd *cobra.Command, defs []Def[T]) {
	if err := Declare(cmd, defs); err != nil {
		panic(err)
	}
}

func declare[T Type](cmd *cobra.Command, def Def[T]) error {
	switch value := any(def.DefaultValue).(type) {
	case string:
		cmd.Flags().String(def.Name, value, def.Description)
	case int:
		cmd.Flags().Int(def.Name, value, def.Description)
	case bool:
		cmd.Flags().Bool(def.Name, value, def.Description)
	case time.Duration:
		cmd.Flags().Duration(def.Name, value, def.Description)
	}

	if err := viper.BindPFlag(def.ViperKey, cmd.Flags().Lookup(def.Name)); err != nil {
		return fmt.Errorf("failed to bind flag %s to %s: %w", def.Name, def.ViperKey, err)
	}

	return nil
}
