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
	"text/template"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/spf13/cobra"

	"github.com/dh1tw/audiosink/discovery"
)

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "List audio devices and audiosink instances discoverable on the LAN",
	RunE:  runEnumerate,
}

func init() {
	RootCmd.AddCommand(enumerateCmd)
	enumerateCmd.Flags().Duration("mdns-timeout", 2*time.Second, "how long to wait for mDNS responses")
}

var deviceTmpl = template.Must(template.New("").Parse(
	`
Available audio devices and supported Host APIs:
{{range .}}
	Name: {{.Name}}{{if .DefaultOutputDevice}}
	Default output device: {{.DefaultOutputDevice.Name}}{{end}}
	Devices:{{range .Devices}}
		{{.Name}} (out: {{.MaxOutputChannels}} ch, default rate: {{.DefaultSampleRate}}){{end}}
{{end}}`,
))

func runEnumerate(cmd *cobra.Command, args []string) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	hostAPIs, err := portaudio.HostApis()
	if err != nil {
		return err
	}
	if err := deviceTmpl.Execute(os.Stdout, hostAPIs); err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("mdns-timeout")
	peers, err := discovery.Browse(timeout)
	if err != nil {
		return fmt.Errorf("enumerate: mdns browse: %w", err)
	}

	fmt.Printf("\nDiscovered %d audiosink instance(s) on the LAN:\n", len(peers))
	for _, p := range peers {
		fmt.Printf("\t%s at %s:%d (id=%s)\n", p.Name, p.Host, p.Port, p.ID)
	}
	return nil
}
