package transaction

// The transaction package lets several independent writers mutate one table. There is no coordinator: each writer
// appends its operations to the shared timeline and checks, just before it commits, that nobody else touched the same
// file groups in the meantime.
//
// A write goes through these steps:
//
// 1. Manager.BeginTransaction takes the table lock (see the lock package) and records the writer's instant as owner.
// 2. PendingSnapshot records what was requested or inflight when the writer started.
// 3. The writer does its work outside the lock.
// 4. ResolveWriteConflictIfAny reloads the timeline, asks the ConflictResolutionStrategy for candidates, adds whatever
//    completed during the window, turns each into a ConcurrentOperation and resolves it against the writer's own
//    metadata. Any *ErrWriteConflict aborts the write.
// 5. Manager.EndTransaction releases the lock, whether or not the write succeeded.
//
// The check is optimistic: a narrow gap remains between the last reload and the final commit entry. The commit entry
// itself is created atomically, which is what finally orders writers.
//
// Two strategies are provided. SimpleConcurrentFileWrites bounds the window by creation time;
// StateTransitionTimeBased bounds it by completion time. Both let an overlap with an older compaction through, because
// a compaction only rewrites an existing file slice.
