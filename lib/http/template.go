package http

import (
	"embed"
	"html/template"
	"os"
	"time"

	"github.com/corsserve/corsserve/fs/config/flags"
	"github.com/corsserve/corsserve/lib/env"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

// TemplateHelp describes how to use a custom template
var TemplateHelp = `
### Template

` + "`--template`" + ` allows a user to specify a custom markup template for
directory listings.  The following fields are available to the template:

| Parameter   | Description |
| :---------- | :---------- |
| .DirRemote  | The path of the directory relative to the root. |
| .Title      | Directory listing of .DirRemote |
| .Sort       | The current sort used.  This is changeable via ?sort= parameter |
|             | Sort Options: name,namedirfirst,size,time (default name) |
| .Order      | The current ordering used.  This is changeable via ?order= parameter |
|             | Order Options: asc,desc (default asc) |
| .Query      | The query string appended to each entry URL. |
| .Entries    | Information about a specific file/directory. |
|-- .URL      | The 'url' of an entry.  |
|-- .Leaf     | The name of the entry, directories end in "/". |
|-- .IsDir    | Boolean for if an entry is a directory or not. |
|-- .Size     | Size in Bytes of the entry. |
|-- .ModTime  | The UTC timestamp of an entry. |

The functions ` + "`humanizeBytes`" + ` and ` + "`afterEpoch`" + ` are available too.` + env.ShellExpandHelp

// TemplateConfig for the templating functionality
type TemplateConfig struct {
	Path string
}

// AddFlagsPrefix for the templating functionality
func (cfg *TemplateConfig) AddFlagsPrefix(flagSet *pflag.FlagSet, prefix string) {
	flags.StringVarP(flagSet, &cfg.Path, prefix+"template", "", cfg.Path, "User-specified template for directory listings")
}

// DefaultTemplateCfg returns a new config which can be customized by command line flags
func DefaultTemplateCfg() TemplateConfig {
	return TemplateConfig{}
}

// AfterEpoch returns the time since the epoch for the given time
func AfterEpoch(t time.Time) bool {
	return t.After(time.Time{})
}

// HumanizeBytes renders a size as eg "1.2 MiB"
func HumanizeBytes(size int64) string {
	if size < 0 {
		return ""
	}
	return humanize.IBytes(uint64(size))
}

// Assets holds the embedded filesystem for the default template
//
//go:embed templates
var Assets embed.FS

// GetTemplate returns the HTML template for directory listings.
//
// An empty tmpl selects the built in template.
func GetTemplate(tmpl string) (*template.Template, error) {
	var readFile = os.ReadFile
	if tmpl == "" {
		tmpl = "templates/index.html"
		readFile = Assets.ReadFile
	} else {
		tmpl = env.ShellExpand(tmpl)
	}

	data, err := readFile(tmpl)
	if err != nil {
		return nil, err
	}

	funcMap := template.FuncMap{
		"afterEpoch":    AfterEpoch,
		"humanizeBytes": HumanizeBytes,
	}

	tpl, err := template.New("index").Funcs(funcMap).Parse(string(data))
	if err != nil {
		return nil, err
	}

	return tpl, nil
}
