package execution

import (
	"errors"
	"fmt"

	"sdexalgo/internal/model"
)

var errRanOutOfFund = errors.New("ran out of fund")
var errEmptyOrderBook = errors.New("order book has no bids")

func errOrNoBids(err error) error {
	if err != nil {
		return err
	}
	return errEmptyOrderBook
}

func submitErr(err error, result model.TransactionResult) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("transaction rejected: %v", result.Errors)
}
