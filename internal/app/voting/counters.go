package voting

import (
	"fmt"

	"github.com/vlebourl/cardinal-vote-sub000/internal/domain"
)

func CounterKeyBallots(id domain.PollID) string {
	return fmt.Sprintf("poll:%s:ballots", id)
}

func CounterKeyOptionCount(pollID domain.PollID, optionID domain.OptionID) string {
	return fmt.Sprintf("poll:%s:option:%s:count", pollID, optionID)
}

func CounterKeyOptionSum(pollID domain.PollID, optionID domain.OptionID) string {
	return fmt.Sprintf("poll:%s:option:%s:sum", pollID, optionID)
}
