/*
Package cli provides helpers shared by the compilegate commands.

Output formatting:

	formatter := cli.NewFormatter(cli.FormatJSON)
	rows := []cli.Row{{Key: "pruned", Value: 12}}
	if err := formatter.FormatTo(os.Stdout, rows); err != nil {
		return err
	}

Signal handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

Errors returned from commands map to exit codes with ExitCode; configuration
problems exit 2.
*/
package cli
