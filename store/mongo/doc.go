// Package mongo implements store.Store on MongoDB.
//
// Claims use a single UpdateOne filtered on {_id, status: "open"}; MongoDB
// applies document updates atomically, so at most one caller can match.
//
//	s, err := mongo.Open(ctx, "mongodb://localhost:27017", "carenest")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
package mongo
