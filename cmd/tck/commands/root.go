package commands

import (
	"context"
	"fmt"
	"os"

	"tckvault/pkg/app"
	"tckvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	TCK *app.App
)

var rootCmd = &cobra.Command{
	Use:   "tck",
	Short: "tckvault: content-addressed trigger configuration store",
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init 命令就是去创建环境的
		if cmd.Name() == "init" {
			return nil
		}

		var err error
		TCK, err = app.NewApp(context.Background())
		if err != nil {
			return fmt.Errorf("failed to initialize tckvault: %w\n(Did you run 'tck init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if TCK == nil {
			return nil
		}
		return TCK.Close()
	},
	SilenceUsage: true,
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tck/config.yaml)")

	// 用户既可以在 yaml 里写，也可以用 flag 覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Directory to store objects")
	rootCmd.PersistentFlags().String("storage-type", "", "memory|disk|s3|sql")
	for key, flag := range map[string]string{
		"storage.path": "storage-path",
		"storage.type": "storage-type",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

// requireApp 防御检查
func requireApp() error {
	if TCK == nil {
		return fmt.Errorf("application not initialized")
	}
	return nil
}
