// Package console implements the operator console.
//
// The console reads commands line by line and dispatches them only once a
// line is complete:
//
//	sessions                 list connected clients
//	send <id> <message>      send "[SERVER] <message>" to one client
//	send 0 <message>         send <message> verbatim to every client
//	exit                     shut the server down
//
// Commands may be abbreviated the way operators are used to ("sessio",
// "ex"). Between commands the console drains the notification queue at a
// fixed interval and prints each event followed by a fresh prompt.
//
// End of input and the shared shutdown signal both stop the console; end of
// input also shuts the server down.
package console
