// Command plutik decodes a property list (binary or XML) and prints it as
// YAML, JSON or a debug dump. Keyed archives are unarchived unless --raw is
// given.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/kr/pretty"
	yaml "gopkg.in/yaml.v2"

	"github.com/appsworld/keyedarchive"
	"github.com/appsworld/keyedarchive/cf"
)

type options struct {
	Format      string `short:"f" long:"format" default:"yaml" choice:"yaml" choice:"json" choice:"pretty" description:"output format"`
	Raw         bool   `long:"raw" description:"emit the decoded plist without unarchiving"`
	KeepClasses bool   `long:"keep-classes" description:"retain $class entries when unarchiving"`
	Positional  struct {
		File string `positional-arg-name:"file"`
	} `positional-args:"yes"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	var data []byte
	var err error
	if opts.Positional.File == "" || opts.Positional.File == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(opts.Positional.File)
	}
	if err != nil {
		bail(err)
	}

	pval, err := keyedarchive.ReadPlist(data)
	if err != nil {
		bail(err)
	}

	if !opts.Raw && keyedarchive.IsKeyedArchive(pval) {
		var uopts []keyedarchive.Option
		if opts.KeepClasses {
			uopts = append(uopts, keyedarchive.KeepClassNames())
		}
		pval, err = keyedarchive.Unarchive(pval, uopts...)
		if err != nil {
			bail(err)
		}
	}

	switch opts.Format {
	case "yaml":
		out, err := yaml.Marshal(plain(pval, true))
		if err != nil {
			bail(err)
		}
		os.Stdout.Write(out)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "\t")
		if err := enc.Encode(plain(pval, false)); err != nil {
			bail(err)
		}
	case "pretty":
		pretty.Println(plain(pval, false))
	}
}

// plain converts a value tree into stock Go values. YAML output preserves
// dictionary order via yaml.MapSlice; JSON cannot.
func plain(v cf.Value, ordered bool) interface{} {
	switch v := v.(type) {
	case *cf.Dictionary:
		if ordered {
			out := make(yaml.MapSlice, 0, v.Len())
			v.Range(func(_ int, k string, val cf.Value) {
				out = append(out, yaml.MapItem{Key: k, Value: plain(val, ordered)})
			})
			return out
		}
		out := make(map[string]interface{}, v.Len())
		v.Range(func(_ int, k string, val cf.Value) {
			out[k] = plain(val, ordered)
		})
		return out
	case cf.Array:
		out := make([]interface{}, len(v))
		for i, el := range v {
			out[i] = plain(el, ordered)
		}
		return out
	case cf.String:
		return string(v)
	case *cf.Number:
		if v.Signed {
			return int64(v.Value)
		}
		return v.Value
	case *cf.Real:
		return v.Value
	case cf.Boolean:
		return bool(v)
	case cf.Date:
		return time.Time(v)
	case cf.Data:
		return []byte(v)
	case cf.Null:
		return nil
	}
	return nil
}

func bail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
