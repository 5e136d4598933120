package report

import (
	"fmt"
	"io"

	ballots "github.com/jicksta/case-ballots"
	"github.com/olekukonko/tablewriter"
)

// markdownTable configures a table for Markdown output.
func markdownTable(writer io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoFormatHeaders(false)
	return table
}

// PrintVoters renders voters as a Markdown table, one row per entry in the order given.
func PrintVoters(writer io.Writer, voters []ballots.VoterEntry) {
	table := markdownTable(writer, []string{"ID", "Case", "Voter", "Amount held", "Vote credit"})
	for _, entry := range voters {
		table.Append([]string{
			fmt.Sprint(entry.VoterID),
			fmt.Sprint(entry.CaseID),
			entry.Voter.Voter,
			entry.AmountHold.String(),
			entry.VoteCredit.String(),
		})
	}
	table.Render()
}

// PrintVotes renders votes as a Markdown table.
func PrintVotes(writer io.Writer, votes []ballots.VoteEntry) {
	table := markdownTable(writer, []string{"ID", "Case", "Evidence", "Voter", "Yes", "No", "Reward"})
	for _, entry := range votes {
		table.Append([]string{
			fmt.Sprint(entry.VoteID),
			fmt.Sprint(entry.CaseID),
			fmt.Sprint(entry.EvidenceID),
			entry.Voter,
			fmt.Sprint(entry.YesCredit),
			fmt.Sprint(entry.NoCredit),
			fmt.Sprint(entry.DistributionReward),
		})
	}
	table.Render()
}
