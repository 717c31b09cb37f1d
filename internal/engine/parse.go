package engine

import (
	"strconv"
	"strings"
)

// ParseCommand tokenizes one input line.
//
// Accepted forms:
//
//	CHECK <account>
//	TRANS <account> <delta> [<account> <delta> ...]
//	END
//
// Keywords are case-sensitive; tokens are separated by any run of
// whitespace. Account ids must be positive integers; the range check
// against the ledger size is done by ValidateAccounts. Deltas must fit in
// int64.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, newCommandError(ErrCodeEmpty, line, "no command")
	}

	switch fields[0] {
	case "CHECK":
		if len(fields) != 2 {
			return Command{}, newCommandError(ErrCodeArity, line, "CHECK takes exactly one account, got %d tokens", len(fields)-1)
		}
		id, err := parseAccount(fields[1], line)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindCheck, Ops: []Operation{{Account: id}}}, nil

	case "TRANS":
		args := fields[1:]
		if len(args) == 0 || len(args)%2 != 0 {
			return Command{}, newCommandError(ErrCodeArity, line, "TRANS takes account/amount pairs, got %d tokens", len(args))
		}
		ops := make([]Operation, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			id, err := parseAccount(args[i], line)
			if err != nil {
				return Command{}, err
			}
			delta, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return Command{}, newCommandError(ErrCodeBadAmount, line, "invalid amount %q", args[i+1])
			}
			ops = append(ops, Operation{Account: id, Delta: delta})
		}
		return Command{Kind: KindTrans, Ops: ops}, nil

	case "END":
		if len(fields) != 1 {
			return Command{}, newCommandError(ErrCodeArity, line, "END takes no arguments")
		}
		return Command{Kind: KindEnd}, nil

	default:
		return Command{}, newCommandError(ErrCodeUnknownKeyword, line, "unknown command %q", fields[0])
	}
}

// ValidateShape checks that cmd carries the operations its kind requires:
// exactly one for CHECK, at least one for TRANS, none for END.
func ValidateShape(cmd Command) error {
	switch cmd.Kind {
	case KindCheck:
		if len(cmd.Ops) != 1 {
			return newCommandError(ErrCodeArity, "", "CHECK needs exactly one account, got %d", len(cmd.Ops))
		}
	case KindTrans:
		if len(cmd.Ops) == 0 {
			return newCommandError(ErrCodeArity, "", "TRANS needs at least one account/amount pair")
		}
	case KindEnd:
		if len(cmd.Ops) != 0 {
			return newCommandError(ErrCodeArity, "", "END takes no arguments")
		}
	default:
		return newCommandError(ErrCodeUnknownKeyword, "", "unknown command kind %d", int(cmd.Kind))
	}
	return nil
}

// ValidateAccounts checks every account of cmd against 1..n.
func ValidateAccounts(cmd Command, n int) error {
	for _, op := range cmd.Ops {
		if op.Account < 1 || op.Account > n {
			return newCommandError(ErrCodeBadAccount, "", "account %d out of range 1..%d", op.Account, n)
		}
	}
	return nil
}

func parseAccount(tok, line string) (int, error) {
	id, err := strconv.Atoi(tok)
	if err != nil || id < 1 {
		return 0, newCommandError(ErrCodeBadAccount, line, "invalid account %q", tok)
	}
	return id, nil
}
