package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/EO-DataHub/eodhp-directory-services/internal/appconfig"
	"github.com/EO-DataHub/eodhp-directory-services/internal/client"
	"github.com/EO-DataHub/eodhp-directory-services/internal/metadata"
	"github.com/spf13/cobra"
)

var clientOpts struct {
	server   string
	user     string
	password string
	token    string
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules loaded by the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setUp()
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		resp, err := c.Index(cmd.Context())
		if err != nil {
			return err
		}
		return printData(cmd.OutOrStdout(), resp.Data)
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <module>",
	Short: "Show the method table the daemon publishes for a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setUp()
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		module, err := c.Metadata(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), module)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&clientOpts.server, "server", "", "directory daemon url (default from config)")
	rootCmd.PersistentFlags().StringVar(&clientOpts.user, "api-user", "", "api user (default from config)")
	rootCmd.PersistentFlags().StringVar(&clientOpts.password, "api-password", os.Getenv("DIRECTORY_PASSWORD"), "api password")
	rootCmd.PersistentFlags().StringVar(&clientOpts.token, "api-token", os.Getenv("DIRECTORY_TOKEN"), "bearer token used instead of basic credentials")

	rootCmd.AddCommand(modulesCmd, metadataCmd)

	modules := metadata.Modules()
	for i := range modules {
		rootCmd.AddCommand(newModuleCmd(&modules[i]))
	}
}

func newModuleCmd(module *metadata.Module) *cobra.Command {
	cmd := &cobra.Command{
		Use:     module.Name,
		Aliases: []string{module.Short},
		Short:   module.Description,
	}
	for i := range module.Methods {
		cmd.AddCommand(newMethodCmd(module, &module.Methods[i]))
	}
	return cmd
}

// newMethodCmd builds a command with one flag per method argument. File
// arguments name a local file that is uploaded with the call.
func newMethodCmd(module *metadata.Module, method *metadata.Method) *cobra.Command {
	values := map[string]*string{}

	cmd := &cobra.Command{
		Use:           method.Name,
		Aliases:       []string{method.Short},
		Short:         method.Description,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setUp()

			query := metadata.Query{}
			var files []io.Reader
			var uploads []client.Upload
			for _, arg := range method.Args() {
				if !cmd.Flags().Changed(arg.Name) {
					continue
				}
				v := *values[arg.Name]
				if arg.VarType != metadata.VarFile {
					query[arg.Name] = v
					continue
				}

				content, err := os.ReadFile(v)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", arg.Name, err)
				}
				files = append(files, bytes.NewReader(content))
				uploads = append(uploads, client.Upload{Field: arg.Name, Name: filepath.Base(v), Content: bytes.NewReader(content)})
			}

			if err := method.Validate(metadata.Call{Query: query, Files: files}); err != nil {
				return err
			}

			c, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := c.Call(cmd.Context(), module.Name, method, query, uploads...)
			if err != nil {
				return err
			}
			return printData(cmd.OutOrStdout(), resp.Data)
		},
	}

	for _, arg := range method.Args() {
		desc := arg.Desc
		if arg.VarType == metadata.VarFile {
			desc += " (path to a local file)"
		}
		values[arg.Name] = cmd.Flags().StringP(arg.Name, arg.Flag, "", desc)
	}
	for _, arg := range method.Required {
		cmd.MarkFlagRequired(arg.Name)
	}
	return cmd
}

// newClient combines the client section of the optional config file with
// the command line overrides.
func newClient(ctx context.Context) (*client.Client, error) {
	cfg := &appconfig.Config{}
	if configPath != "" {
		var err error
		if cfg, err = loadConfig(ctx); err != nil {
			return nil, err
		}
	} else {
		cfg.ApplyDefaults()
	}

	server, user, password := cfg.Client.Server, cfg.Client.User, cfg.Client.Pass
	if clientOpts.server != "" {
		server = clientOpts.server
	}
	if clientOpts.user != "" {
		user = clientOpts.user
	}
	if clientOpts.password != "" {
		password = clientOpts.password
	}

	c := client.NewClient(server, user, password)
	c.Token = clientOpts.token
	return c, nil
}

// printData writes strings verbatim, lists one entry per line and anything
// else as indented JSON.
func printData(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if _, err := fmt.Fprintln(w, s); err != nil {
					return err
				}
				continue
			}
			if err := printJSON(w, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return printJSON(w, v)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
