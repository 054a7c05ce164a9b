package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/pacer/pkg/cli"
	"mercator-hq/pacer/pkg/route"
)

var routeFlags struct {
	majors  []string
	gateway string
	format  string
}

var routeCmd = &cobra.Command{
	Use:   "route <path>...",
	Short: "Show how request paths are grouped into routes",
	Long: `Print the route each path is classified into.

Paths with the same route key are assumed to share a rate limit bucket
until a reply says otherwise. Segments that are not purely alphabetic are
elided unless they follow a major parameter collection.

Examples:
  pacer route /channels/1/messages/2 /channels/1/messages/3
  pacer route --major channels,guilds --format json /guilds/7/members/1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringSliceVar(&routeFlags.majors, "major", route.DefaultMajorParameters, "major parameter collections")
	routeCmd.Flags().StringVar(&routeFlags.gateway, "gateway", route.GatewayPath, "path of the gateway route")
	routeCmd.Flags().StringVar(&routeFlags.format, "format", "text", "output format: text, json, csv")
}

type routeRecord struct {
	Path      string `json:"path"`
	Canonical string `json:"canonical"`
	Key       string `json:"key"`
	Gateway   bool   `json:"gateway"`
}

func runRoute(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(routeFlags.format)
	if err != nil {
		return err
	}

	classifier := route.NewClassifier(routeFlags.majors).WithGateway(routeFlags.gateway)
	gateway := classifier.Gateway()
	table := &cli.Table{Headers: []string{"PATH", "ROUTE", "KEY", "GATEWAY"}}
	records := make([]routeRecord, 0, len(args))
	for _, path := range args {
		key := classifier.Classify(path)
		r := routeRecord{
			Path:      path,
			Canonical: classifier.Canonical(path),
			Key:       key.String(),
			Gateway:   key == gateway,
		}
		records = append(records, r)
		table.Rows = append(table.Rows, []string{r.Path, r.Canonical, r.Key, strconv.FormatBool(r.Gateway)})
	}
	table.Records = records

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table)
}
