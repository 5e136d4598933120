package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	ballots "github.com/jicksta/case-ballots"
	"github.com/jicksta/case-ballots/config"
	"github.com/jicksta/case-ballots/report"
)

const usage = `Usage: ballots <command> [args]

Commands:
  serve                                                  run the HTTP API
  voters                                                 list every voter
  votes                                                  list every vote
  evidence <evidence-id>                                 list votes on one piece of evidence
  voter <id>                                             show one voter
  vote <id>                                              show one vote
  add-voter <case> <voter> <hold> <credit>               insert a voter
  add-vote <case> <evidence> <voter> <yes> <no> <reward> insert a vote
  update-voter <id> <case> <voter> <hold> <credit>       replace a voter
  update-vote <id> <case> <evidence> <voter> <yes> <no> <reward>
                                                         replace a vote
  rm-voter <id>                                          delete a voter
  rm-vote <id>                                           delete a vote
  code                                                   show the current code hash
  set-code <hash>                                        switch to a registered code hash

Settings come from BALLOTS_* environment variables.
`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	host, err := codeHost(cfg)
	if err != nil {
		closeStore()
		log.Fatalf("Error: %v", err)
	}

	if os.Args[1] == "serve" {
		err = serve(cfg, store, host)
	} else {
		err = run(ctx, store, host, os.Args[1], os.Args[2:], os.Stdout)
	}
	closeStore()

	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func codeHost(cfg *config.Config) (*ballots.CodeRegistry, error) {
	hashes, err := cfg.TrustedCodeHashes()
	if err != nil {
		return nil, err
	}
	return ballots.NewCodeRegistry(hashes...), nil
}

// run executes one non-server command against store and writes its output to out.
func run(ctx context.Context, store ballots.RecordStore, host ballots.CodeHost, command string, args []string, out io.Writer) error {
	switch command {
	case "voters":
		if err := expectArgs(command, args, 0); err != nil {
			return err
		}
		voters, err := store.ListVoters(ctx)
		if err != nil {
			return err
		}
		report.PrintVoters(out, voters)

	case "votes":
		if err := expectArgs(command, args, 0); err != nil {
			return err
		}
		votes, err := store.ListVotes(ctx)
		if err != nil {
			return err
		}
		report.PrintVotes(out, votes)

	case "evidence":
		ids, err := parseIDs(command, args, 1)
		if err != nil {
			return err
		}
		votes, err := store.ListVotesForEvidence(ctx, ids[0])
		if err != nil {
			return err
		}
		report.PrintVotes(out, votes)

	case "voter":
		ids, err := parseIDs(command, args, 1)
		if err != nil {
			return err
		}
		voter, found, err := store.GetVoter(ctx, ids[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("voter %d: %w", ids[0], ballots.ErrVoterNotFound)
		}
		report.PrintVoters(out, []ballots.VoterEntry{voter})

	case "vote":
		ids, err := parseIDs(command, args, 1)
		if err != nil {
			return err
		}
		vote, found, err := store.GetVote(ctx, ids[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("vote %d: %w", ids[0], ballots.ErrVoteNotFound)
		}
		report.PrintVotes(out, []ballots.VoteEntry{vote})

	case "add-voter":
		if err := expectArgs(command, args, 4); err != nil {
			return err
		}
		voter, err := parseVoter(args)
		if err != nil {
			return err
		}
		id, err := store.InsertVoter(ctx, voter)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "voter %d\n", id)

	case "add-vote":
		if err := expectArgs(command, args, 6); err != nil {
			return err
		}
		vote, err := parseVote(args)
		if err != nil {
			return err
		}
		id, err := store.InsertVote(ctx, vote)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "vote %d\n", id)

	case "update-voter":
		if err := expectArgs(command, args, 5); err != nil {
			return err
		}
		id, err := ballots.ParseIdentifier(args[0])
		if err != nil {
			return err
		}
		voter, err := parseVoter(args[1:])
		if err != nil {
			return err
		}
		if err := store.UpdateVoter(ctx, id, voter); err != nil {
			return err
		}
		fmt.Fprintf(out, "voter %d updated\n", id)

	case "update-vote":
		if err := expectArgs(command, args, 7); err != nil {
			return err
		}
		id, err := ballots.ParseIdentifier(args[0])
		if err != nil {
			return err
		}
		vote, err := parseVote(args[1:])
		if err != nil {
			return err
		}
		if err := store.UpdateVote(ctx, id, vote); err != nil {
			return err
		}
		fmt.Fprintf(out, "vote %d updated\n", id)

	case "rm-voter":
		ids, err := parseIDs(command, args, 1)
		if err != nil {
			return err
		}
		if err := store.DeleteVoter(ctx, ids[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "voter %d deleted\n", ids[0])

	case "rm-vote":
		ids, err := parseIDs(command, args, 1)
		if err != nil {
			return err
		}
		if err := store.DeleteVote(ctx, ids[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "vote %d deleted\n", ids[0])

	case "code":
		if err := expectArgs(command, args, 0); err != nil {
			return err
		}
		hash, found, err := store.CodeHash(ctx)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(out, "no code hash recorded")
			return nil
		}
		fmt.Fprintln(out, hash)

	case "set-code":
		if err := expectArgs(command, args, 1); err != nil {
			return err
		}
		hash, err := ballots.ParseCodeHash(args[0])
		if err != nil {
			return err
		}
		if err := store.MigrateCode(ctx, host, hash); err != nil {
			return err
		}
		fmt.Fprintf(out, "switched code hash to %s\n", hash)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
	return nil
}

func expectArgs(command string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", errUsage, command, n, len(args))
	}
	return nil
}

func parseIDs(command string, args []string, n int) ([]ballots.Identifier, error) {
	if err := expectArgs(command, args, n); err != nil {
		return nil, err
	}
	ids := make([]ballots.Identifier, 0, n)
	for _, arg := range args {
		id, err := ballots.ParseIdentifier(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseVoter reads <case> <voter> <hold> <credit>.
func parseVoter(args []string) (ballots.Voter, error) {
	caseID, err := ballots.ParseIdentifier(args[0])
	if err != nil {
		return ballots.Voter{}, err
	}
	hold, err := ballots.ParseBalance(args[2])
	if err != nil {
		return ballots.Voter{}, fmt.Errorf("hold: %w", err)
	}
	credit, err := ballots.ParseBalance(args[3])
	if err != nil {
		return ballots.Voter{}, fmt.Errorf("credit: %w", err)
	}
	return ballots.Voter{CaseID: caseID, Voter: args[1], AmountHold: hold, VoteCredit: credit}, nil
}

// parseVote reads <case> <evidence> <voter> <yes> <no> <reward>.
func parseVote(args []string) (ballots.Vote, error) {
	caseID, err := ballots.ParseIdentifier(args[0])
	if err != nil {
		return ballots.Vote{}, err
	}
	evidenceID, err := ballots.ParseIdentifier(args[1])
	if err != nil {
		return ballots.Vote{}, err
	}
	var credits [3]uint8
	for i, arg := range args[3:6] {
		value, err := strconv.ParseUint(arg, 10, 8)
		if err != nil {
			return ballots.Vote{}, fmt.Errorf("credit %q: %w", arg, err)
		}
		credits[i] = uint8(value)
	}
	return ballots.Vote{
		CaseID:             caseID,
		EvidenceID:         evidenceID,
		Voter:              args[2],
		YesCredit:          credits[0],
		NoCredit:           credits[1],
		DistributionReward: credits[2],
	}, nil
}
