// Package obslog provides file-based JSON logging with rotation for the
// vector database server. Every CLI command writes to
// ~/.hnswdb/logs/server.log and to stderr at info level; the --debug flag
// lowers the level to debug. Shards opened with ShardConfig log to their
// own ~/.hnswdb/logs/<shard>.log.
package obslog
