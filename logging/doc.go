/*
Package logging implements application log instrumentation and Apache
combined access log.

# Application Log

The application log uses the logrus package:

https://github.com/sirupsen/logrus

To send messages to the application log, import logrus and use its
methods. Example:

	import log "github.com/sirupsen/logrus"

	func doSomething() {
	    log.Errorf("nothing to do")
	}

During startup initialization, it is possible to redirect the log output
from the default /dev/stderr to another file, to set the level, to switch
to JSON, and to set a common prefix for each log entry. Setting the prefix
may be a good idea when the access log is enabled and its output is the
same as the one of the application log, to make it easier to split the
output for diagnostics.

# Access Log

The access log prints HTTP access information in the Apache combined
access log format, followed by the duration in milliseconds, the request
id and the upstream target. To output entries, use the LogAccess function.
The proxy calls it for every request.

During initialization, it is possible to redirect the access log output
from the default /dev/stderr to another file, to switch to JSON, or to
completely disable the access log.

# Response Writer

LoggingWriter records the status and the size of the response, and tracks
whether the response headers were sent. The proxy relies on it to never
send the headers twice.
*/
package logging
