package service

import (
	"context"

	"github.com/rzbill/evpipe/pkg/logstore"
)

// Stats reports the introspection snapshot of a log: length, ID bounds,
// approximate disk usage, and a summary of every consumer group.
func (s *Service) Stats(ctx context.Context, log string) (*logstore.LogStats, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return nil, err
	}
	st := &logstore.LogStats{
		Log:    log,
		Length: ls.Log.Length(),
		LastID: ls.Log.LastID(),
		Bytes:  ls.Log.DiskUsage(),
	}
	first, ok, err := ls.Log.FirstID()
	if err != nil {
		return nil, err
	}
	if ok {
		st.FirstID = first
	}
	names, err := ls.Groups.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range names {
		gi, err := ls.Groups.Info(ctx, g)
		if err != nil {
			return nil, err
		}
		st.Groups = append(st.Groups, gi)
	}
	return st, nil
}
