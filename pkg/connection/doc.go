// Package connection maps device IDs to targets and builds clients for them.
//
// A connections file lists devices by ID, each with a target URI and an
// optional address table. Three encodings are accepted, chosen by file
// extension:
//
//	<!-- devices.xml -->
//	<connections>
//	  <connection id="board0" uri="ipbustcp-2.0://10.0.0.10:50001" address_table="file://board.xml"/>
//	</connections>
//
//	# devices.yaml
//	connections:
//	  - id: board0
//	    uri: ipbustcp-2.0://10.0.0.10:50001
//	    address_table: file://board.xml
//
//	# devices.toml
//	[[connections]]
//	id = "board0"
//	uri = "ipbustcp-2.0://10.0.0.10:50001"
//	address_table = "file://board.xml"
//
// Relative address table paths are resolved against the directory of the
// connections file. Address tables themselves are not interpreted here.
//
// # Waiting for a device
//
// WaitReachable pings a device until it answers, sleeping with exponential
// backoff between attempts. The delay starts at 250 milliseconds, doubles
// on each failure and is capped at 5 seconds. Up to 25% jitter is added:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Clients themselves never retry; this is the caller-level retry loop.
package connection
