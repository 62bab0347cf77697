package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docchat/internal/adapter/history"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change runtime settings",
	Long: `Runtime settings (sampling parameters, system instruction, chunking)
are stored in the history database and take effect on the next request,
without a restart. Known keys: ` + keyList() + `.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show one setting, or all settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func keyList() string {
	list := ""
	for i, key := range history.SettingKeys() {
		if i > 0 {
			list += ", "
		}
		list += key
	}
	return list
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		value, err := a.history.Setting(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}

	for _, key := range history.SettingKeys() {
		value, err := a.history.Setting(key)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", key, value)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.SetSetting(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", args[0], args[1])
	return nil
}
