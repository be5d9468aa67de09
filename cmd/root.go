// Copyright © 2016 Tobias Wellnitz, DH1TW <Tobias.Wellnitz@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd is the entry point every subcommand attaches itself to in init.
var RootCmd = &cobra.Command{
	Use:   "audiosink",
	Short: "A slaved audio sink renderer",
	Long: `audiosink renders a timestamped audio stream to an output device,
keeping the device's playout clock slaved to a reference clock.`,
}

// Execute runs the root command; main only has to call this.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.audiosink.yaml)")
	RootCmd.PersistentFlags().String("output-device", "default", "output device name")
	RootCmd.PersistentFlags().Int("channels", 2, "output channels")
	RootCmd.PersistentFlags().Int64("buffer-time-us", 200_000, "requested device buffer duration, in microseconds")
	RootCmd.PersistentFlags().Int64("latency-time-us", 10_000, "requested segment duration, in microseconds")
	RootCmd.PersistentFlags().String("slave-method", "skew", "clock slaving strategy: resample, skew or none")
	RootCmd.PersistentFlags().Bool("provide-clock", true, "provide-clock property (stored in the sink config; the sink does not act on it)")
	RootCmd.PersistentFlags().String("status-addr", ":8090", "address the status API listens on")

	viper.BindPFlag("output-device", RootCmd.PersistentFlags().Lookup("output-device"))
	viper.BindPFlag("channels", RootCmd.PersistentFlags().Lookup("channels"))
	viper.BindPFlag("buffer-time-us", RootCmd.PersistentFlags().Lookup("buffer-time-us"))
	viper.BindPFlag("latency-time-us", RootCmd.PersistentFlags().Lookup("latency-time-us"))
	viper.BindPFlag("slave-method", RootCmd.PersistentFlags().Lookup("slave-method"))
	viper.BindPFlag("provide-clock", RootCmd.PersistentFlags().Lookup("provide-clock"))
	viper.BindPFlag("status-addr", RootCmd.PersistentFlags().Lookup("status-addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".audiosink")
	}

	viper.SetEnvPrefix("audiosink")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}
