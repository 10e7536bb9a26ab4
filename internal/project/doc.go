// Package project answers access questions about projects.
//
// A project owns exactly one site. A user may access a project when they
// own it or are listed as a member. The subscription registry, the live
// stream endpoints and the notification fan-out all resolve access here.
package project
