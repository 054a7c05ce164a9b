/*
Package cli provides command-line helpers used by the pacer command.

Output Formatting:

Commands build a Table and write it in the format chosen with --format:

	format, err := cli.ParseOutputFormat(flagValue)
	table := &cli.Table{Headers: []string{"ROUTE", "BUCKET"}, Rows: rows, Records: records}
	err = cli.NewFormatter(format).FormatTo(os.Stdout, table)

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Add(1) // from any goroutine
	progress.Finish()

Errors:

ConfigError and CommandError classify failures; ExitCode maps them to the
process exit status.
*/
package cli
