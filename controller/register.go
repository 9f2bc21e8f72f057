// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controller

import (
	_ "github.com/packetd/flowmon/exporter/sinker/events"
	_ "github.com/packetd/flowmon/processor/eventmetrics"
	_ "github.com/packetd/flowmon/processor/kindfilter"
	_ "github.com/packetd/flowmon/processor/payloadtrimmer"
	_ "github.com/packetd/flowmon/processor/targettagger"
	_ "github.com/packetd/flowmon/protocol/pdns"
	_ "github.com/packetd/flowmon/protocol/pesp"
	_ "github.com/packetd/flowmon/protocol/pftp"
	_ "github.com/packetd/flowmon/protocol/pgre"
	_ "github.com/packetd/flowmon/protocol/phttp"
	_ "github.com/packetd/flowmon/protocol/picmp"
	_ "github.com/packetd/flowmon/protocol/pip"
	_ "github.com/packetd/flowmon/protocol/pmail"
	_ "github.com/packetd/flowmon/protocol/pntp"
	_ "github.com/packetd/flowmon/protocol/prtp"
	_ "github.com/packetd/flowmon/protocol/psip"
	_ "github.com/packetd/flowmon/protocol/psmtp"
	_ "github.com/packetd/flowmon/sniffer/pcapfile"
)
