package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strawgate/homeassistant-elasticsearch/internal/app/datastream"
	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
)

func newTemplateCmd() *cobra.Command {
	var (
		version string
		flavor  string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the index template as it would be installed on a cluster version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := domain.ParseClusterVersion(version, flavor)
			if err != nil {
				return err
			}
			caps := domain.CapabilitiesFor(v)
			if !caps.Supported {
				return fmt.Errorf("cluster version %s is not supported", v.Number)
			}
			body, err := datastream.Build(caps)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				return err
			}
			pretty.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(pretty.Bytes())
			return err
		},
	}
	cmd.Flags().StringVar(&version, "es-version", "8.14.0", "Cluster version to render the template for")
	cmd.Flags().StringVar(&flavor, "flavor", "default", "Cluster build flavor (default or serverless)")
	return cmd
}
