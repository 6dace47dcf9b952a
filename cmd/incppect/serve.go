package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	incppect "github.com/incppect/incppect-go"
)

func serveCmd() *cobra.Command {
	var (
		port      int
		httpRoot  string
		resources []string
		ssl       bool
		sslKey    string
		sslCert   string
		metrics   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo inspection server",
		Long: `Serve registers a small set of demo variables and the resources named
with --resource, then runs the inspection service. A page loading
/incppect.js can read the demo variables:

  var_int8, var_int16, var_int32, var_int32_arr, var_int32_arr[%d],
  var_float, var_double, var_str, frame_count, time_ms`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Referenced disk resources must exist up front; a typo'd path
			// should fail loudly instead of serving "Resource not found".
			if !strings.HasPrefix(httpRoot, "s3://") {
				for _, res := range resources {
					target := res
					if target == "" || strings.HasSuffix(target, "/") {
						target += "index.html"
					}
					p := filepath.Join(httpRoot, filepath.FromSlash(target))
					if _, err := os.Stat(p); err != nil {
						return fmt.Errorf("resource %q not found at %s", res, p)
					}
				}
			}

			ins := incppect.New()
			registerDemoVars(ins)

			ins.SetHandler(func(clientID int32, event incppect.EventType, data []byte) {
				switch event {
				case incppect.Connect:
					fmt.Printf("client %d connected from %d.%d.%d.%d\n",
						clientID, data[0], data[1], data[2], data[3])
				case incppect.Disconnect:
					fmt.Printf("client %d disconnected\n", clientID)
				case incppect.Custom:
					fmt.Printf("client %d: %q\n", clientID, data)
				}
			})

			params := incppect.DefaultParameters()
			params.Port = port
			params.HTTPRoot = httpRoot
			params.Resources = resources
			params.SSL = ssl
			params.SSLKey = sslKey
			params.SSLCert = sslCert
			params.EnableMetrics = metrics

			fmt.Printf("url: localhost:%d\n", port)
			return ins.Run(params)
		},
	}

	cmd.Flags().IntVar(&port, "port", 3000, "TCP listen port")
	cmd.Flags().StringVar(&httpRoot, "http-root", ".", "static resource root (directory or s3://bucket/prefix)")
	cmd.Flags().StringSliceVar(&resources, "resource", []string{"", "index.html"}, "resource URLs to serve from the root")
	cmd.Flags().BoolVar(&ssl, "ssl", false, "serve TLS")
	cmd.Flags().StringVar(&sslKey, "ssl-key", "key.pem", "TLS key file")
	cmd.Flags().StringVar(&sslCert, "ssl-cert", "cert.pem", "TLS certificate file")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose Prometheus metrics at /metrics")

	return cmd
}

// registerDemoVars mirrors the variable set of the original hello-browser
// example plus a couple of live values.
func registerDemoVars(ins *incppect.Inspector) {
	var (
		varInt8  int8  = 1
		varInt16 int16 = 2
		varInt32 int32 = 3
		varArr32       = [4]int32{4, 5, 6, 7}
		varF32   float32 = 8.0
		varF64           = 16.0
		varStr           = "hello browser"
	)

	start := time.Now()
	frameCount := int32(0)

	ins.Var("var_int8", func([]int32) []byte { return incppect.ViewInt8(varInt8) })
	ins.Var("var_int16", func([]int32) []byte { return incppect.ViewInt16(varInt16) })
	ins.Var("var_int32", func([]int32) []byte { return incppect.ViewInt32(varInt32) })
	ins.Var("var_int32_arr", func([]int32) []byte {
		b := make([]byte, 0, 16)
		for _, v := range varArr32 {
			b = append(b, incppect.ViewInt32(v)...)
		}
		return b
	})
	ins.Var("var_int32_arr[%d]", func(idxs []int32) []byte {
		i := int(idxs[0])
		if i < 0 || i >= len(varArr32) {
			return nil
		}
		return incppect.ViewInt32(varArr32[i])
	})
	ins.Var("var_float", func([]int32) []byte { return incppect.ViewFloat32(varF32) })
	ins.Var("var_double", func([]int32) []byte { return incppect.ViewFloat64(varF64) })
	ins.Var("var_str", func([]int32) []byte { return incppect.ViewString(varStr) })
	ins.Var("frame_count", func([]int32) []byte {
		frameCount++
		return incppect.ViewInt32(frameCount)
	})
	ins.Var("time_ms", func([]int32) []byte {
		return incppect.ViewInt64(time.Since(start).Milliseconds())
	})
}
