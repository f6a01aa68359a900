// Package bridge runs transfers off the caller's goroutine and reports on
// them with plain-data messages.
//
// A Request goes in; a stream of Message values comes out of the returned
// Operation. Progress messages arrive at most once per completed chunk, and
// every operation ends with exactly one terminal message:
//
//	{"result":"success","fileId":"..."}
//	{"result":"uploadFail","fileId":""}
//	{"result":"error","error":{"name":"...","message":"...","code":"..."}}
//	{"result":"abort"}
//
// Encode and Decode convert messages to and from that JSON form.
package bridge
