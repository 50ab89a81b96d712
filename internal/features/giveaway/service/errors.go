package service

import "errors"

// errStopRefresh tells the scheduler that a giveaway's repeating refresh is
// no longer applicable (record gone, giveaway terminal, or announcement
// target deleted) and must be cancelled instead of retried.
var errStopRefresh = errors.New("giveaway refresh no longer applicable")
