// Package pebblestore wraps Pebble with the process-wide fsync policy and a
// small metrics hook. Every mutation goes through CommitBatch so the
// always/interval/never durability choice applies uniformly, whether the
// caller built the batch or used a point helper.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: dataDir,
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set(key, value, nil)
//	if err := db.CommitBatch(ctx, b); err != nil {
//	    return err
//	}
package pebblestore
