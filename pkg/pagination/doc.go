// Package pagination drives offset/limit paging of OneRoster collections.
//
// OneRoster servers page collections with limit and offset query parameters
// and announce the collection size in the X-Total-Count header. The fetcher
// requests pages strictly in order, since each offset depends on how many
// records have been accumulated so far.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(onerosterClient, pagination.DefaultConfig(), logger)
//	coll := fetcher.FetchAll(ctx, "/orgs")
//	if !coll.Complete {
//		// coll.Records holds whatever arrived before the failure
//	}
//
// The fetcher:
//   - Reads the total from the first successful page's header
//   - Falls back to the first page's record count when the header is missing
//   - Stops at the first non-200 result and keeps the partial collection
//   - Never returns an error; the outcome is reported on the Collection
package pagination
